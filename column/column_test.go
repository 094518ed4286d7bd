package column

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/danthegoodman1/scanbench/pgtest"
	"github.com/jackc/pgtype"
)

func TestParseTypeTag(t *testing.T) {
	cases := map[string]TypeTag{
		"character varying":           TypeString,
		"VARCHAR2(4000)":              TypeUnsupported,
		"varchar(4000)":               TypeString,
		"text":                        TypeString,
		"xml":                         TypeString,
		"jsonb":                       TypeString,
		"bytea":                       TypeBinary,
		"numeric(18,4)":               TypeNumeric,
		"double precision":            TypeNumeric,
		"bigint":                      TypeInteger,
		"INTEGER":                     TypeInteger,
		"timestamp with time zone":    TypeTemporal,
		"timestamp(6) with time zone": TypeTemporal,
		"date":                        TypeTemporal,
		"tid":                         TypeRowID,
		"boolean":                     TypeUnsupported,
		"uuid":                        TypeUnsupported,
		"":                            TypeUnsupported,
	}
	for declared, want := range cases {
		if got := ParseTypeTag(declared); got != want {
			t.Fatalf("ParseTypeTag(%q) = %s, want %s", declared, got, want)
		}
	}
}

func TestNeedsTextProjection(t *testing.T) {
	if !NewDescriptor("doc", "xml", 1).NeedsTextProjection() {
		t.Fatal("xml should be projected as text")
	}
	if !NewDescriptor("doc", "JSONB", 1).NeedsTextProjection() {
		t.Fatal("jsonb should be projected as text")
	}
	if NewDescriptor("c", "text", 1).NeedsTextProjection() {
		t.Fatal("text should be projected raw")
	}
}

func TestDecodeEveryFamilyText(t *testing.T) {
	d := NewDispatcher()
	cases := []struct {
		tag  TypeTag
		v    RawValue
		want any
	}{
		{TypeString, RawValue{Bytes: []byte("row1col1")}, "row1col1"},
		{TypeBinary, RawValue{Bytes: []byte(`\x726f77`)}, []byte("row")},
		{TypeNumeric, RawValue{Bytes: []byte("3.25")}, 3.25},
		{TypeNumeric, RawValue{Bytes: []byte("12.5000"), OID: pgtype.NumericOID}, 12.5},
		{TypeInteger, RawValue{Bytes: []byte("42")}, int64(42)},
		{TypeInteger, RawValue{Bytes: []byte("-7"), OID: pgtype.Int2OID}, int64(-7)},
		{TypeTemporal, RawValue{Bytes: []byte("2024-01-02 03:04:05+00")}, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{TypeTemporal, RawValue{Bytes: []byte("2024-01-02"), OID: pgtype.DateOID}, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{TypeRowID, RawValue{Bytes: []byte("(3,17)")}, "(3,17)"},
		{TypeRowID, RawValue{Bytes: []byte("16384"), OID: pgtype.OIDOID}, "16384"},
	}

	for _, c := range cases {
		got, err := d.Decode(c.tag, c.v)
		if err != nil {
			t.Fatalf("%s %q: %s", c.tag, c.v.Bytes, err)
		}
		switch want := c.want.(type) {
		case []byte:
			if string(got.([]byte)) != string(want) {
				t.Fatalf("%s: got %v want %v", c.tag, got, want)
			}
		case time.Time:
			if !got.(time.Time).Equal(want) {
				t.Fatalf("%s: got %v want %v", c.tag, got, want)
			}
		default:
			if got != c.want {
				t.Fatalf("%s: got %v (%T) want %v (%T)", c.tag, got, got, c.want, c.want)
			}
		}
	}
}

func TestDecodeBinaryFormat(t *testing.T) {
	d := NewDispatcher()

	i8 := make([]byte, 8)
	binary.BigEndian.PutUint64(i8, 99)
	got, err := d.Decode(TypeInteger, RawValue{Bytes: i8, Format: BinaryFormat, OID: pgtype.Int8OID})
	if err != nil {
		t.Fatal(err)
	}
	if got != int64(99) {
		t.Fatalf("got %v", got)
	}

	i4 := make([]byte, 4)
	binary.BigEndian.PutUint32(i4, 7)
	got, err = d.Decode(TypeInteger, RawValue{Bytes: i4, Format: BinaryFormat, OID: pgtype.Int4OID})
	if err != nil {
		t.Fatal(err)
	}
	if got != int64(7) {
		t.Fatalf("got %v", got)
	}

	f8 := make([]byte, 8)
	binary.BigEndian.PutUint64(f8, math.Float64bits(1.5))
	got, err = d.Decode(TypeNumeric, RawValue{Bytes: f8, Format: BinaryFormat, OID: pgtype.Float8OID})
	if err != nil {
		t.Fatal(err)
	}
	if got != 1.5 {
		t.Fatalf("got %v", got)
	}

	got, err = d.Decode(TypeString, RawValue{Bytes: []byte("plain"), Format: BinaryFormat, OID: pgtype.VarcharOID})
	if err != nil {
		t.Fatal(err)
	}
	if got != "plain" {
		t.Fatalf("got %v", got)
	}

	got, err = d.Decode(TypeBinary, RawValue{Bytes: []byte{0xde, 0xad}, Format: BinaryFormat, OID: pgtype.ByteaOID})
	if err != nil {
		t.Fatal(err)
	}
	if string(got.([]byte)) != "\xde\xad" {
		t.Fatalf("got %v", got)
	}
}

func TestDecodeMalformed(t *testing.T) {
	d := NewDispatcher()
	bad := []struct {
		tag TypeTag
		v   RawValue
	}{
		{TypeInteger, RawValue{Bytes: []byte("forty-two")}},
		{TypeNumeric, RawValue{Bytes: []byte("1.2.3")}},
		{TypeTemporal, RawValue{Bytes: []byte("yesterday-ish")}},
		{TypeBinary, RawValue{Bytes: []byte("not hex")}},
		{TypeInteger, RawValue{Bytes: []byte{1, 2, 3}, Format: BinaryFormat, OID: pgtype.Int8OID}},
		{TypeString, RawValue{Bytes: []byte("x"), Format: 7}},
	}
	for _, c := range bad {
		_, err := d.Decode(c.tag, c.v)
		if err == nil {
			t.Fatalf("%s %q: expected an error", c.tag, c.v.Bytes)
		}
		var unhandled *UnhandledTypeError
		if errors.As(err, &unhandled) {
			t.Fatalf("%s: malformed value reported as unhandled type", c.tag)
		}
	}
}

func TestDecodeUnsupported(t *testing.T) {
	d := NewDispatcher()
	for _, tag := range []TypeTag{TypeUnsupported, TypeTag(200)} {
		v, err := d.Decode(tag, RawValue{Bytes: []byte("t")})
		var unhandled *UnhandledTypeError
		if !errors.As(err, &unhandled) {
			t.Fatalf("tag %d: got %v, want UnhandledTypeError", tag, err)
		}
		if v != nil {
			t.Fatalf("tag %d: got value %v", tag, v)
		}
	}
}

func TestLoadDescriptors(t *testing.T) {
	connector := &pgtest.Connector{Table: pgtest.NewTable(1)}
	conn, err := connector.Connect(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	cols, err := LoadDescriptors(context.Background(), conn, "test1", true)
	if err != nil {
		t.Fatal(err)
	}
	if len(cols) != 6 {
		t.Fatalf("got %d columns", len(cols))
	}
	if cols[0].Name != RowIDColumn || cols[0].Tag != TypeRowID || cols[0].Position != 1 {
		t.Fatalf("first column %+v", cols[0])
	}
	if cols[1].Name != "id" || cols[1].Tag != TypeInteger || cols[1].Position != 2 {
		t.Fatalf("second column %+v", cols[1])
	}
	if cols[5].Tag != TypeTemporal {
		t.Fatalf("last column %+v", cols[5])
	}

	cols, err = LoadDescriptors(context.Background(), conn, "test1", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(cols) != 5 || cols[0].Name != "id" {
		t.Fatalf("got %+v", cols)
	}
}

func TestLoadDescriptorsEmpty(t *testing.T) {
	connector := &pgtest.Connector{Table: &pgtest.Table{}}
	conn, _ := connector.Connect(context.Background())
	_, err := LoadDescriptors(context.Background(), conn, "missing", true)
	if !errors.Is(err, ErrNoColumns) {
		t.Fatalf("got %v", err)
	}
}
