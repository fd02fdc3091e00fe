package headers

import "fmt"

// ID is a header identifier. The two high bits select the value encoding.
type ID uint8

// Encoding is the value encoding selected by the high bits of an ID.
type Encoding uint8

const (
	EncodingUnicode Encoding = 0x00 // length prefixed, null terminated UTF-16BE
	EncodingBytes   Encoding = 0x40 // length prefixed byte sequence
	EncodingByte    Encoding = 0x80 // single byte
	EncodingUint32  Encoding = 0xC0 // 4 byte big-endian integer

	encodingMask uint8 = 0xC0
)

// Well-known header identifiers
const (
	Count                 ID = 0xC0
	Name                  ID = 0x01
	Type                  ID = 0x42
	Length                ID = 0xC3
	TimeISO8601           ID = 0x44
	Time4Byte             ID = 0xC4
	Description           ID = 0x05
	Target                ID = 0x46
	HTTP                  ID = 0x47
	Body                  ID = 0x48
	EndOfBody             ID = 0x49
	Who                   ID = 0x4A
	ConnectionID          ID = 0xCB
	AppParameters         ID = 0x4C
	AuthChallenge         ID = 0x4D
	AuthResponse          ID = 0x4E
	ObjectClass           ID = 0x4F
	CreatorID             ID = 0xCF
	WANUUID               ID = 0x50
	SessionParameters     ID = 0x52
	SessionSequenceNumber ID = 0x93
)

// LengthUnknown is the LENGTH value that announces no body.
const LengthUnknown uint32 = 0xFFFFFFFF

// Encoding returns the value encoding of the identifier.
func (id ID) Encoding() Encoding {
	return Encoding(uint8(id) & encodingMask)
}

// textual reports whether a byte sequence header is exposed as a string.
// TYPE carries null terminated ASCII; TIME_ISO8601 carries plain ASCII.
func (id ID) textual() bool {
	return id == Type || id == TimeISO8601
}

// String returns string representation of ID
func (id ID) String() string {
	switch id {
	case Count:
		return "COUNT"
	case Name:
		return "NAME"
	case Type:
		return "TYPE"
	case Length:
		return "LENGTH"
	case TimeISO8601:
		return "TIME_ISO_8601"
	case Time4Byte:
		return "TIME_4_BYTE"
	case Description:
		return "DESCRIPTION"
	case Target:
		return "TARGET"
	case HTTP:
		return "HTTP"
	case Body:
		return "BODY"
	case EndOfBody:
		return "END_OF_BODY"
	case Who:
		return "WHO"
	case ConnectionID:
		return "CONNECTION_ID"
	case AppParameters:
		return "APP_PARAMETERS"
	case AuthChallenge:
		return "AUTH_CHALLENGE"
	case AuthResponse:
		return "AUTH_RESPONSE"
	case ObjectClass:
		return "OBJECT_CLASS"
	case CreatorID:
		return "CREATOR_ID"
	case WANUUID:
		return "WAN_UUID"
	case SessionParameters:
		return "SESSION_PARAMETERS"
	case SessionSequenceNumber:
		return "SESSION_SEQUENCE_NUMBER"
	default:
		return fmt.Sprintf("HEADER(0x%02X)", uint8(id))
	}
}
