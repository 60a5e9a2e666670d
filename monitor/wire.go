package monitor

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/klauspost/compress/gzip"
	"google.golang.org/protobuf/encoding/protowire"
)

// Frame payload types.
const (
	payloadMessage   = "msg"
	payloadAck       = "ack"
	payloadHeartbeat = "hb"
)

// pushFrame is the envelope of every WebSocket binary message.
type pushFrame struct {
	SeqID           uint64 // 1
	LogID           uint64 // 2
	PayloadEncoding string // 6
	PayloadType     string // 7
	Payload         []byte // 8
}

func (f *pushFrame) marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, f.SeqID)
	b = appendVarint(b, 2, f.LogID)
	b = appendBytes(b, 6, []byte(f.PayloadEncoding))
	b = appendBytes(b, 7, []byte(f.PayloadType))
	b = appendBytes(b, 8, f.Payload)
	return b
}

func unmarshalFrame(b []byte) (*pushFrame, error) {
	f := &pushFrame{}
	err := walk(b, func(fd field) {
		switch fd.num {
		case 1:
			f.SeqID = fd.varint
		case 2:
			f.LogID = fd.varint
		case 6:
			f.PayloadEncoding = string(fd.bytes)
		case 7:
			f.PayloadType = string(fd.bytes)
		case 8:
			f.Payload = fd.bytes
		}
	})
	if err != nil {
		return nil, fmt.Errorf("monitor: decode frame: %w", err)
	}
	return f, nil
}

// response is the decompressed payload of a "msg" frame.
type response struct {
	Messages    []envelope // 1
	InternalExt string     // 5
	NeedAck     bool       // 9
}

// envelope is one typed message inside a response.
type envelope struct {
	Method  string // 1
	Payload []byte // 2
}

func unmarshalResponse(b []byte) (*response, error) {
	r := &response{}
	var inner error
	err := walk(b, func(fd field) {
		switch fd.num {
		case 1:
			var e envelope
			if err := walk(fd.bytes, func(m field) {
				switch m.num {
				case 1:
					e.Method = string(m.bytes)
				case 2:
					e.Payload = m.bytes
				}
			}); err != nil {
				inner = err
				return
			}
			r.Messages = append(r.Messages, e)
		case 5:
			r.InternalExt = string(fd.bytes)
		case 9:
			r.NeedAck = fd.varint != 0
		}
	})
	if err == nil {
		err = inner
	}
	if err != nil {
		return nil, fmt.Errorf("monitor: decode response: %w", err)
	}
	return r, nil
}

// framePayload returns the frame payload, gunzipped when it carries the
// gzip magic bytes.
func framePayload(f *pushFrame) ([]byte, error) {
	if len(f.Payload) < 2 || f.Payload[0] != 0x1f || f.Payload[1] != 0x8b {
		return f.Payload, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(f.Payload))
	if err != nil {
		return nil, fmt.Errorf("monitor: gunzip: %w", err)
	}
	defer zr.Close()
	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("monitor: gunzip: %w", err)
	}
	return data, nil
}

// Message methods carried by the push stream.
const (
	methodChat   = "WebcastChatMessage"
	methodGift   = "WebcastGiftMessage"
	methodLike   = "WebcastLikeMessage"
	methodMember = "WebcastMemberMessage"
	methodSocial = "WebcastSocialMessage"
)

// decodeMessage turns an envelope into a Message. ok is false for methods
// that are not surfaced.
func decodeMessage(e envelope) (msg Message, ok bool, err error) {
	switch e.Method {
	case methodChat:
		msg.Kind = KindChat
		err = walk(e.Payload, func(f field) {
			switch f.num {
			case 1:
				msg.ID = commonID(f.bytes)
			case 2:
				msg.UserID, msg.Name = decodeUser(f.bytes)
			case 3:
				msg.Content = string(f.bytes)
			}
		})
		msg.Text = msg.Content

	case methodGift:
		msg.Kind = KindGift
		err = walk(e.Payload, func(f field) {
			switch f.num {
			case 1:
				msg.ID = commonID(f.bytes)
			case 5:
				msg.GiftCount = f.varint
			case 7:
				msg.UserID, msg.Name = decodeUser(f.bytes)
			case 15:
				_ = walk(f.bytes, func(g field) {
					switch g.num {
					case 12:
						msg.DiamondCount = g.varint
					case 16:
						msg.GiftName = string(g.bytes)
					}
				})
			}
		})
		msg.Text = fmt.Sprintf("sent %s x%d", msg.GiftName, msg.GiftCount)

	case methodLike:
		msg.Kind = KindLike
		err = walk(e.Payload, func(f field) {
			switch f.num {
			case 1:
				msg.ID = commonID(f.bytes)
			case 2:
				msg.LikeCount = f.varint
			case 3:
				msg.LikeTotal = f.varint
			case 5:
				msg.UserID, msg.Name = decodeUser(f.bytes)
			}
		})
		msg.Text = fmt.Sprintf("liked x%d", msg.LikeCount)

	case methodMember:
		msg.Kind = KindMember
		err = walk(e.Payload, func(f field) {
			switch f.num {
			case 1:
				msg.ID = commonID(f.bytes)
			case 2:
				msg.UserID, msg.Name = decodeUser(f.bytes)
			case 3:
				msg.MemberCount = f.varint
			}
		})
		msg.Text = "joined the room"

	case methodSocial:
		msg.Kind = KindFollow
		err = walk(e.Payload, func(f field) {
			switch f.num {
			case 1:
				msg.ID = commonID(f.bytes)
			case 2:
				msg.UserID, msg.Name = decodeUser(f.bytes)
			case 6:
				msg.FollowCount = f.varint
			}
		})
		msg.Text = "followed the host"

	default:
		return Message{}, false, nil
	}
	if err != nil {
		return Message{}, false, fmt.Errorf("monitor: decode %s: %w", e.Method, err)
	}
	return msg, true, nil
}

// commonID reads msgId (2) from a Common block.
func commonID(b []byte) string {
	var id uint64
	_ = walk(b, func(f field) {
		if f.num == 2 {
			id = f.varint
		}
	})
	if id == 0 {
		return ""
	}
	return strconv.FormatUint(id, 10)
}

// decodeUser reads id (1) and nickName (3) from a User block.
func decodeUser(b []byte) (id, name string) {
	_ = walk(b, func(f field) {
		switch f.num {
		case 1:
			id = strconv.FormatUint(f.varint, 10)
		case 3:
			name = string(f.bytes)
		}
	})
	return id, name
}

// field is one decoded varint or length-delimited field.
type field struct {
	num    protowire.Number
	varint uint64
	bytes  []byte
}

// walk calls fn for each varint and length-delimited field of the encoded
// message b, skipping fields of other wire types.
func walk(b []byte, fn func(field)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		f := field{num: num}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		if typ == protowire.VarintType || typ == protowire.BytesType {
			fn(f)
		}
	}
	return nil
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}
