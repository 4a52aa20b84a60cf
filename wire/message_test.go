package wire

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameDeframeRoundTrip(t *testing.T) {
	t.Run("single message", func(t *testing.T) {
		framed := Frame(CmdPing, NewMsgPing(42).Encode(), MainNet)
		result := Deframe(framed, MainNet)

		require.Len(t, result.Messages, 1)
		assert.Equal(t, CmdPing, result.Messages[0].Command)
		assert.Empty(t, result.Remaining)
		assert.Empty(t, result.Errors)

		ping, err := DecodePing(result.Messages[0].Payload)
		require.NoError(t, err)
		assert.Equal(t, uint64(42), ping.Nonce)
	})

	t.Run("multiple concatenated messages", func(t *testing.T) {
		var buf []byte

		buf = append(buf, Frame(CmdPing, NewMsgPing(1).Encode(), MainNet)...)
		buf = append(buf, Frame(CmdVerAck, nil, MainNet)...)
		buf = append(buf, Frame(CmdPong, NewMsgPong(2).Encode(), MainNet)...)

		result := Deframe(buf, MainNet)
		require.Len(t, result.Messages, 3)
		assert.Equal(t, []string{CmdPing, CmdVerAck, CmdPong},
			[]string{result.Messages[0].Command, result.Messages[1].Command, result.Messages[2].Command})
		assert.Empty(t, result.Remaining)
		assert.Empty(t, result.Errors)
	})

	t.Run("garbage before magic is skipped", func(t *testing.T) {
		buf := append([]byte{0xde, 0xad, 0xbe, 0xef, 0x00}, Frame(CmdPing, NewMsgPing(7).Encode(), MainNet)...)

		result := Deframe(buf, MainNet)
		require.Len(t, result.Messages, 1)
		assert.Equal(t, CmdPing, result.Messages[0].Command)
	})

	t.Run("partial frame is returned as remaining", func(t *testing.T) {
		framed := Frame(CmdPing, NewMsgPing(9).Encode(), MainNet)
		cut := framed[:len(framed)-3]

		result := Deframe(cut, MainNet)
		assert.Empty(t, result.Messages)
		assert.Equal(t, cut, result.Remaining)

		// appending the rest yields the full message, as a caller would do
		restart := append(append([]byte{}, result.Remaining...), framed[len(framed)-3:]...)
		result = Deframe(restart, MainNet)
		require.Len(t, result.Messages, 1)
	})

	t.Run("bad checksum is recorded and skipped", func(t *testing.T) {
		good := Frame(CmdPong, NewMsgPong(3).Encode(), MainNet)
		bad := Frame(CmdPing, NewMsgPing(1).Encode(), MainNet)
		bad[20]++ // corrupt the checksum

		buf := append(append([]byte{}, bad...), good...)

		result := Deframe(buf, MainNet)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, CmdPing, result.Errors[0].Command)
		assert.Equal(t, "bad checksum", result.Errors[0].Reason)

		require.Len(t, result.Messages, 1)
		assert.Equal(t, CmdPong, result.Messages[0].Command)
	})

	t.Run("wrong network yields nothing", func(t *testing.T) {
		framed := Frame(CmdPing, NewMsgPing(1).Encode(), MainNet)

		result := Deframe(framed, RegTestNet)
		assert.Empty(t, result.Messages)
	})

	t.Run("oversized declared length is recorded", func(t *testing.T) {
		framed := Frame(CmdHeaders, nil, MainNet)
		// claim a payload far beyond the allowed maximum
		framed[16] = 0xff
		framed[17] = 0xff
		framed[18] = 0xff
		framed[19] = 0xff

		result := Deframe(framed, MainNet)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "payload length exceeds maximum", result.Errors[0].Reason)
	})
}

func TestNetAddressRoundTrip(t *testing.T) {
	t.Run("ipv4 mapped", func(t *testing.T) {
		na := NewNetAddress(net.ParseIP("203.0.113.7"), 8333, SFNodeNetwork)
		na.Timestamp = 1700000000

		msg := NewMsgAddr()
		require.NoError(t, msg.AddAddress(na))

		decoded, err := DecodeAddr(msg.Encode())
		require.NoError(t, err)
		require.Len(t, decoded.AddrList, 1)

		got := decoded.AddrList[0]
		assert.Equal(t, "203.0.113.7", got.IP.String())
		assert.Equal(t, uint16(8333), got.Port)
		assert.Equal(t, uint32(1700000000), got.Timestamp)
		assert.Equal(t, SFNodeNetwork, got.Services)
	})

	t.Run("ipv6", func(t *testing.T) {
		na := NewNetAddress(net.ParseIP("2001:db8::1"), 18333, 0)

		msg := NewMsgAddr()
		require.NoError(t, msg.AddAddress(na))

		decoded, err := DecodeAddr(msg.Encode())
		require.NoError(t, err)
		assert.Equal(t, "2001:db8::1", decoded.AddrList[0].IP.String())
	})
}
