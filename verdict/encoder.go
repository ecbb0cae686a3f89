package verdict

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

const (
	batchFormatVersionCurrent = 2
	// v1 blobs predate reviewer overrides.
	batchFormatVersionV1 = 1
)

const maxShortString = math.MaxUint16

// Encode serializes b into the versioned binary blob stored by [RedisStore].
func Encode(b *Batch) ([]byte, error) {
	if b == nil {
		return nil, ErrInvalidBatch
	}
	var buf bytes.Buffer

	buf.WriteByte(batchFormatVersionCurrent)

	for _, s := range []string{b.ID, b.AnchorID, b.SessionID} {
		if err := writeString(&buf, s); err != nil {
			return nil, err
		}
	}
	if err := binary.Write(&buf, binary.BigEndian, b.FinalizedAt.UnixNano()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, b.Settings.SimilarityThreshold); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, b.Settings.MaxDisplacementRadius); err != nil {
		return nil, err
	}
	buf.WriteByte(boolByte(b.Settings.PhysicsShieldEnabled))

	if uint64(len(b.Records)) > math.MaxUint32 {
		return nil, errors.New("too many records")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(b.Records))); err != nil {
		return nil, err
	}
	for i := range b.Records {
		if err := encodeRecord(&buf, &b.Records[i]); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}

	return buf.Bytes(), nil
}

func encodeRecord(buf *bytes.Buffer, r *Record) error {
	if err := writeString(buf, r.ParticipantID); err != nil {
		return err
	}
	for _, f := range []float64{r.SimilarityScore, r.Displacement, r.OverlapRatio} {
		if err := binary.Write(buf, binary.BigEndian, f); err != nil {
			return err
		}
	}
	if r.CommonDimensions < 0 || int64(r.CommonDimensions) > math.MaxUint32 {
		return errors.New("common dimensions out of range")
	}
	if err := binary.Write(buf, binary.BigEndian, uint32(r.CommonDimensions)); err != nil {
		return err
	}
	buf.WriteByte(boolByte(r.LivenessConfirmed))

	if len(r.Flags) > maxShortString {
		return errors.New("too many flags")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(r.Flags))); err != nil {
		return err
	}
	for _, f := range r.Flags {
		if err := writeString(buf, f); err != nil {
			return err
		}
	}

	code := r.Status.code()
	if code == 0 {
		return errors.New("invalid status")
	}
	buf.WriteByte(code)
	if err := writeString(buf, r.Reason); err != nil {
		return err
	}

	if r.Override == nil {
		buf.WriteByte(0)
		return nil
	}
	ocode := r.Override.Status.code()
	if ocode == 0 {
		return errors.New("invalid override status")
	}
	buf.WriteByte(1)
	buf.WriteByte(ocode)
	if err := writeString(buf, r.Override.Reviewer); err != nil {
		return err
	}
	if err := writeString(buf, r.Override.Note); err != nil {
		return err
	}
	return binary.Write(buf, binary.BigEndian, r.Override.UpdatedAt.UnixNano())
}

// Decode parses a blob produced by [Encode]. Version 1 blobs decode with no overrides.
func Decode(data []byte) (*Batch, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != batchFormatVersionCurrent && version != batchFormatVersionV1 {
		return nil, errors.New("invalid batch version")
	}

	b := &Batch{}
	if b.ID, err = readString(reader); err != nil {
		return nil, err
	}
	if b.AnchorID, err = readString(reader); err != nil {
		return nil, err
	}
	if b.SessionID, err = readString(reader); err != nil {
		return nil, err
	}

	var finalized int64
	if err := binary.Read(reader, binary.BigEndian, &finalized); err != nil {
		return nil, err
	}
	b.FinalizedAt = time.Unix(0, finalized).UTC()

	if err := binary.Read(reader, binary.BigEndian, &b.Settings.SimilarityThreshold); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &b.Settings.MaxDisplacementRadius); err != nil {
		return nil, err
	}
	shield, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	b.Settings.PhysicsShieldEnabled = shield == 1

	var count uint32
	if err := binary.Read(reader, binary.BigEndian, &count); err != nil {
		return nil, err
	}
	// Each record needs far more than one byte; reject counts the blob cannot hold.
	if int64(count) > int64(reader.Len()) {
		return nil, errors.New("record count exceeds payload")
	}
	b.Records = make([]Record, 0, count)
	for i := uint32(0); i < count; i++ {
		r, err := decodeRecord(reader, version)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		b.Records = append(b.Records, r)
	}

	return b, nil
}

func decodeRecord(reader *bytes.Reader, version byte) (Record, error) {
	var r Record
	var err error

	if r.ParticipantID, err = readString(reader); err != nil {
		return r, err
	}
	for _, f := range []*float64{&r.SimilarityScore, &r.Displacement, &r.OverlapRatio} {
		if err := binary.Read(reader, binary.BigEndian, f); err != nil {
			return r, err
		}
	}
	var dims uint32
	if err := binary.Read(reader, binary.BigEndian, &dims); err != nil {
		return r, err
	}
	r.CommonDimensions = int(dims)

	live, err := reader.ReadByte()
	if err != nil {
		return r, err
	}
	r.LivenessConfirmed = live == 1

	var nflags uint16
	if err := binary.Read(reader, binary.BigEndian, &nflags); err != nil {
		return r, err
	}
	if nflags > 0 {
		r.Flags = make([]string, 0, nflags)
	}
	for i := uint16(0); i < nflags; i++ {
		f, err := readString(reader)
		if err != nil {
			return r, err
		}
		r.Flags = append(r.Flags, f)
	}

	code, err := reader.ReadByte()
	if err != nil {
		return r, err
	}
	if r.Status, err = statusFromCode(code); err != nil {
		return r, err
	}
	if r.Reason, err = readString(reader); err != nil {
		return r, err
	}

	if version == batchFormatVersionV1 {
		return r, nil
	}

	hasOverride, err := reader.ReadByte()
	if err != nil {
		return r, err
	}
	if hasOverride == 0 {
		return r, nil
	}
	o := &Override{}
	ocode, err := reader.ReadByte()
	if err != nil {
		return r, err
	}
	if o.Status, err = statusFromCode(ocode); err != nil {
		return r, err
	}
	if o.Reviewer, err = readString(reader); err != nil {
		return r, err
	}
	if o.Note, err = readString(reader); err != nil {
		return r, err
	}
	var at int64
	if err := binary.Read(reader, binary.BigEndian, &at); err != nil {
		return r, err
	}
	o.UpdatedAt = time.Unix(0, at).UTC()
	r.Override = o
	return r, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > maxShortString {
		return errors.New("string too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", err
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
