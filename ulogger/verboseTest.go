package ulogger

type TestingT interface {
	Errorf(format string, args ...interface{})
	FailNow()
	Logf(format string, args ...any)
}

// VerboseTestLogger writes everything through t.Logf so output is attached
// to the failing test rather than interleaved on stdout.
type VerboseTestLogger struct {
	t TestingT
}

func NewVerboseTestLogger(t TestingT) *VerboseTestLogger {
	return &VerboseTestLogger{t: t}
}

func (l *VerboseTestLogger) LogLevel() int { return 0 }

func (l *VerboseTestLogger) SetLogLevel(_ string) {}

func (l *VerboseTestLogger) Debugf(format string, args ...interface{}) {
	l.t.Logf("DEBUG: "+format, args...)
}

func (l *VerboseTestLogger) Infof(format string, args ...interface{}) {
	l.t.Logf("INFO: "+format, args...)
}

func (l *VerboseTestLogger) Warnf(format string, args ...interface{}) {
	l.t.Logf("WARN: "+format, args...)
}

func (l *VerboseTestLogger) Errorf(format string, args ...interface{}) {
	l.t.Logf("ERROR: "+format, args...)
}

func (l *VerboseTestLogger) Fatalf(format string, args ...interface{}) {
	l.t.Errorf(format, args...)
	l.t.FailNow()
}

func (l *VerboseTestLogger) New(_ string, _ ...Option) Logger {
	return l
}

func (l *VerboseTestLogger) Duplicate(_ ...Option) Logger {
	return l
}
