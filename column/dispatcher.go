package column

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgtype"
)

type (
	// Decoder materializes a raw cell into the Go representation of its family.
	Decoder interface {
		Decode(tag TypeTag, v RawValue) (any, error)
	}

	// Dispatcher is the Decoder backed by pgtype. It holds no state and is safe
	// for concurrent use.
	Dispatcher struct{}

	// UnhandledTypeError is returned for tags that have no decode strategy. It is
	// a warning: the cell is skipped, the scan goes on.
	UnhandledTypeError struct {
		Tag TypeTag
	}

	wireValue interface {
		pgtype.TextDecoder
		pgtype.BinaryDecoder
		AssignTo(dst interface{}) error
	}
)

var ErrUnknownFormat = errors.New("unknown wire format code")

func (e *UnhandledTypeError) Error() string {
	return fmt.Sprintf("no decode strategy for %s column", e.Tag)
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

func (*Dispatcher) Decode(tag TypeTag, v RawValue) (any, error) {
	switch tag {
	case TypeString:
		var s string
		err := decodeAssign(&pgtype.Text{}, v, &s)
		return s, err
	case TypeBinary:
		var b []byte
		err := decodeAssign(&pgtype.Bytea{}, v, &b)
		return b, err
	case TypeNumeric:
		var f float64
		err := decodeAssign(numericValue(v.OID), v, &f)
		return f, err
	case TypeInteger:
		var i int64
		err := decodeAssign(integerValue(v.OID), v, &i)
		return i, err
	case TypeTemporal:
		var t time.Time
		err := decodeAssign(temporalValue(v.OID), v, &t)
		return t, err
	case TypeRowID:
		return decodeRowID(v)
	default:
		return nil, &UnhandledTypeError{Tag: tag}
	}
}

func numericValue(oid uint32) wireValue {
	switch oid {
	case pgtype.Float4OID:
		return &pgtype.Float4{}
	case pgtype.NumericOID:
		return &pgtype.Numeric{}
	default:
		return &pgtype.Float8{}
	}
}

func integerValue(oid uint32) wireValue {
	switch oid {
	case pgtype.Int2OID:
		return &pgtype.Int2{}
	case pgtype.Int4OID:
		return &pgtype.Int4{}
	default:
		return &pgtype.Int8{}
	}
}

func temporalValue(oid uint32) wireValue {
	switch oid {
	case pgtype.DateOID:
		return &pgtype.Date{}
	case pgtype.TimestampOID:
		return &pgtype.Timestamp{}
	default:
		return &pgtype.Timestamptz{}
	}
}

// decodeRowID returns a printable label, it is only used to give decode errors some context.
func decodeRowID(v RawValue) (string, error) {
	if v.OID == pgtype.OIDOID {
		var oid pgtype.OIDValue
		if err := decodeWire(&oid, v); err != nil {
			return "", err
		}
		return fmt.Sprint(oid.Uint), nil
	}

	var tid pgtype.TID
	if err := decodeWire(&tid, v); err != nil {
		return "", err
	}
	return fmt.Sprintf("(%d,%d)", tid.BlockNumber, tid.OffsetNumber), nil
}

func decodeAssign(dst wireValue, v RawValue, target interface{}) error {
	if err := decodeWire(dst, v); err != nil {
		return err
	}
	if err := dst.AssignTo(target); err != nil {
		return fmt.Errorf("error in AssignTo: %w", err)
	}
	return nil
}

func decodeWire(dst interface {
	pgtype.TextDecoder
	pgtype.BinaryDecoder
}, v RawValue) error {
	switch v.Format {
	case TextFormat:
		if err := dst.DecodeText(nil, v.Bytes); err != nil {
			return fmt.Errorf("error in DecodeText: %w", err)
		}
	case BinaryFormat:
		if err := dst.DecodeBinary(nil, v.Bytes); err != nil {
			return fmt.Errorf("error in DecodeBinary: %w", err)
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnknownFormat, v.Format)
	}
	return nil
}
