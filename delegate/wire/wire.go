// Package wire implements the before/after-image codec: the serialized
// form of a delegate chain (and, for after-images, its return value)
// that crosses a process boundary via the staging files a process.Delegate
// hands to the delegate-function-run helper.
//
// CBOR (github.com/fxamacker/cbor/v2) is the chosen wire format: a
// self-contained, language-neutral binary encoding, in place of the
// original implementation's interpreter-bound pickle.
package wire

import (
	"bytes"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/aledsdavies/delegatefunc/delegate"
)

// FormatVersion is embedded as the first byte of every before/after
// image so a future incompatible wire change can be detected cleanly
// instead of failing deep inside a CBOR decode.
const FormatVersion = byte(1)

// BeforeImage is the complete state handed to a helper process: the
// delegate chain it must run (forward already applied up to and
// including this link; the helper's job starts at this link's step) and
// the invocation it must carry out.
type BeforeImage struct {
	Chain  *delegate.LinkDTO `cbor:"chain"`
	Record RecordDTO         `cbor:"record"`
}

// AfterImage is the complete state a helper process hands back: the
// chain as it stood after the call (carrying any state mutation the
// terminal link's method performed on its target) and the call's return
// value. Error is populated instead of Record.Return when the user's
// method itself failed (Open Question decision 3: the failure payload is
// carried structurally rather than collapsed into the helper's exit
// status).
type AfterImage struct {
	Chain  *delegate.LinkDTO `cbor:"chain"`
	Record RecordDTO         `cbor:"record"`
	Error  *UserErrorDTO     `cbor:"error,omitempty"`
}

// UserErrorDTO is the wire-level shape of delegate.UserMethodError.
type UserErrorDTO struct {
	TypeName string            `cbor:"type_name"`
	Message  string            `cbor:"message"`
	Payload  delegate.ValueDTO `cbor:"payload,omitempty"`
}

// RecordDTO is the wire-level shape of delegate.Record.
type RecordDTO struct {
	Target delegate.ValueDTO   `cbor:"target"`
	Method string              `cbor:"method"`
	Args   []delegate.ValueDTO `cbor:"args,omitempty"`
	Kwargs map[string]any      `cbor:"kwargs,omitempty"`
	Return delegate.ValueDTO   `cbor:"return"`
}

// EncodeRecord converts a delegate.Record into its wire form.
func EncodeRecord(rec *delegate.Record) (RecordDTO, error) {
	target, err := delegate.EncodeValue(rec.Target)
	if err != nil {
		return RecordDTO{}, fmt.Errorf("encode target: %w", err)
	}
	args := make([]delegate.ValueDTO, len(rec.Args))
	for i, a := range rec.Args {
		dto, err := delegate.EncodeValue(a)
		if err != nil {
			return RecordDTO{}, fmt.Errorf("encode arg %d: %w", i, err)
		}
		args[i] = dto
	}
	ret, err := delegate.EncodeValue(rec.Return)
	if err != nil {
		return RecordDTO{}, fmt.Errorf("encode return value: %w", err)
	}
	return RecordDTO{Target: target, Method: rec.Method, Args: args, Kwargs: rec.Kwargs, Return: ret}, nil
}

// DecodeRecord rebuilds a delegate.Record from its wire form.
func DecodeRecord(dto RecordDTO) (*delegate.Record, error) {
	target, err := delegate.DecodeValue(dto.Target)
	if err != nil {
		return nil, fmt.Errorf("decode target: %w", err)
	}
	args := make([]any, len(dto.Args))
	for i, a := range dto.Args {
		v, err := delegate.DecodeValue(a)
		if err != nil {
			return nil, fmt.Errorf("decode arg %d: %w", i, err)
		}
		args[i] = v
	}
	ret, err := delegate.DecodeValue(dto.Return)
	if err != nil {
		return nil, fmt.Errorf("decode return value: %w", err)
	}
	return &delegate.Record{Target: target, Method: dto.Method, Args: args, Kwargs: dto.Kwargs, Return: ret}, nil
}

func encodeTo(w io.Writer, v any) error {
	if _, err := w.Write([]byte{FormatVersion}); err != nil {
		return fmt.Errorf("write format version: %w", err)
	}
	enc, err := cbor.Marshal(v)
	if err != nil {
		return fmt.Errorf("cbor marshal: %w", err)
	}
	if _, err := w.Write(enc); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

func decodeFrom(r io.Reader, out any) error {
	buf, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}
	if len(buf) == 0 {
		return fmt.Errorf("empty image")
	}
	version, payload := buf[0], buf[1:]
	if version != FormatVersion {
		return fmt.Errorf("unsupported wire format version %d (this build understands %d)", version, FormatVersion)
	}
	// Whole numbers decode into `any` as int64, whatever their sign, so a
	// value that crossed the boundary compares equal to the int64 it was.
	dm, err := cbor.DecOptions{IntDec: cbor.IntDecConvertSigned}.DecMode()
	if err != nil {
		return fmt.Errorf("cbor decode mode: %w", err)
	}
	if err := dm.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("cbor unmarshal: %w", err)
	}
	return nil
}

// WriteBeforeImage encodes chain and rec and writes the versioned image to w.
func WriteBeforeImage(w io.Writer, chain delegate.Delegate, rec *delegate.Record) error {
	dto, err := delegate.ToDTO(chain)
	if err != nil {
		return fmt.Errorf("encode chain: %w", err)
	}
	recDTO, err := EncodeRecord(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return encodeTo(w, BeforeImage{Chain: dto, Record: recDTO})
}

// ReadBeforeImage decodes a before-image previously written by WriteBeforeImage.
func ReadBeforeImage(r io.Reader) (delegate.Delegate, *delegate.Record, error) {
	var img BeforeImage
	if err := decodeFrom(r, &img); err != nil {
		return nil, nil, err
	}
	chain, err := delegate.FromDTO(img.Chain)
	if err != nil {
		return nil, nil, fmt.Errorf("decode chain: %w", err)
	}
	rec, err := DecodeRecord(img.Record)
	if err != nil {
		return nil, nil, fmt.Errorf("decode record: %w", err)
	}
	return chain, rec, nil
}

// WriteAfterImage encodes chain and rec (post-call, with Return set and
// the terminal target's mutated state) and writes the versioned image to w.
func WriteAfterImage(w io.Writer, chain delegate.Delegate, rec *delegate.Record) error {
	return WriteAfterImageWithError(w, chain, rec, nil)
}

// WriteAfterImageWithError is WriteAfterImage, but when userErr is
// non-nil it carries the user method's own failure structurally instead
// of a return value — the helper still exits 0, since it successfully
// ran the call to completion; only the call itself failed.
func WriteAfterImageWithError(w io.Writer, chain delegate.Delegate, rec *delegate.Record, userErr *delegate.UserMethodError) error {
	dto, err := delegate.ToDTO(chain)
	if err != nil {
		return fmt.Errorf("encode chain: %w", err)
	}
	recDTO, err := EncodeRecord(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	img := AfterImage{Chain: dto, Record: recDTO}
	if userErr != nil {
		payload, err := delegate.EncodeValue(userErr.Payload)
		if err != nil {
			return fmt.Errorf("encode user error payload: %w", err)
		}
		img.Error = &UserErrorDTO{TypeName: userErr.TypeName, Message: userErr.Message, Payload: payload}
	}
	return encodeTo(w, img)
}

// ReadAfterImage decodes an after-image previously written by WriteAfterImage.
func ReadAfterImage(r io.Reader) (delegate.Delegate, *delegate.Record, error) {
	var img AfterImage
	if err := decodeFrom(r, &img); err != nil {
		return nil, nil, err
	}
	chain, err := delegate.FromDTO(img.Chain)
	if err != nil {
		return nil, nil, fmt.Errorf("decode chain: %w", err)
	}
	rec, err := DecodeRecord(img.Record)
	if err != nil {
		return nil, nil, fmt.Errorf("decode record: %w", err)
	}
	return chain, rec, nil
}

// ApplyAfterImage decodes an after-image from r and replays its return
// value and terminal target mutation onto rec in place, preserving the
// caller's original rec.Target identity instead of allocating a fresh
// decoded copy.
func ApplyAfterImage(r io.Reader, rec *delegate.Record) error {
	var img AfterImage
	if err := decodeFrom(r, &img); err != nil {
		return err
	}
	if img.Error != nil {
		payload, err := delegate.DecodeValue(img.Error.Payload)
		if err != nil {
			return fmt.Errorf("decode user error payload: %w", err)
		}
		return &delegate.UserMethodError{TypeName: img.Error.TypeName, Message: img.Error.Message, Payload: payload}
	}
	if err := delegate.ApplyValue(rec.Target, img.Record.Target); err != nil {
		return fmt.Errorf("apply target mutation: %w", err)
	}
	ret, err := delegate.DecodeValue(img.Record.Return)
	if err != nil {
		return fmt.Errorf("decode return value: %w", err)
	}
	rec.Return = ret
	return nil
}

// EncodeBytes is a convenience for callers that want the image as a byte
// slice rather than streamed to an io.Writer (e.g. staging to a file).
func EncodeBytes(write func(io.Writer) error) ([]byte, error) {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
