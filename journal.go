package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"
)

// ErrJournalMisaligned reports input and output logs of different lengths.
var ErrJournalMisaligned = errors.New("cache: journal inputs and outputs differ in length")

// Operation is a journaled call: positional args in, one result out.
type Operation func(ctx context.Context, args ...any) (any, error)

// Middleware wraps the operation registered under name.
type Middleware func(name string, next Operation) Operation

// Chain wraps op with mws. mws[0] is outermost, so it runs first and sees
// every call, including ones an inner middleware rejects.
func Chain(name string, op Operation, mws ...Middleware) Operation {
	for i := len(mws) - 1; i >= 0; i-- {
		op = mws[i](name, op)
	}
	return op
}

// InputsKey is the list holding the JSON args of each journaled call.
func InputsKey(name string) string { return name + ":inputs" }

// OutputsKey is the list holding the JSON result of each journaled call.
func OutputsKey(name string) string { return name + ":outputs" }

// CountCalls increments the counter at name before every call, whether or
// not the call later fails. The result is passed through unchanged.
func CountCalls(b Backend) Middleware {
	return func(name string, next Operation) Operation {
		return func(ctx context.Context, args ...any) (any, error) {
			if _, err := b.Increment(ctx, name); err != nil {
				return nil, fmt.Errorf("count %s: %w", name, err)
			}
			return next(ctx, args...)
		}
	}
}

// CallHistory journals the args and result of every successful call. Both
// entries are pushed together after the call returns, so a failed call leaves
// no trace and the input and output logs stay the same length.
func CallHistory(b Backend) Middleware {
	return func(name string, next Operation) Operation {
		return func(ctx context.Context, args ...any) (any, error) {
			input, err := encodeJournalArgs(args)
			if err != nil {
				return nil, fmt.Errorf("encode %s args: %w", name, err)
			}
			result, err := next(ctx, args...)
			if err != nil {
				return result, err
			}
			output, err := encodeJournalValue(result)
			if err != nil {
				return result, fmt.Errorf("encode %s result: %w", name, err)
			}
			err = b.Push(ctx,
				ListEntry{Key: InputsKey(name), Value: input},
				ListEntry{Key: OutputsKey(name), Value: output},
			)
			if err != nil {
				return result, fmt.Errorf("journal %s: %w", name, err)
			}
			return result, nil
		}
	}
}

// Call is one journaled invocation. Numbers in Args and Result decode as
// json.Number so large integers keep every digit.
type Call struct {
	Args      []any
	Result    any
	RawArgs   json.RawMessage
	RawResult json.RawMessage
}

// Calls reads the invocation counter for name. A missing counter is zero.
func Calls(ctx context.Context, b Backend, name string) (int64, error) {
	body, ok, err := b.Get(ctx, name)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(string(body), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter %q is not numeric: %w", name, err)
	}
	return n, nil
}

// History decodes the journal for name in call order. When the logs differ
// in length, the paired calls are returned together with ErrJournalMisaligned.
func History(ctx context.Context, b Backend, name string) ([]Call, error) {
	inputs, err := b.Range(ctx, InputsKey(name), 0, -1)
	if err != nil {
		return nil, err
	}
	outputs, err := b.Range(ctx, OutputsKey(name), 0, -1)
	if err != nil {
		return nil, err
	}
	n := min(len(inputs), len(outputs))
	calls := make([]Call, 0, n)
	for i := 0; i < n; i++ {
		call := Call{
			RawArgs:   json.RawMessage(inputs[i]),
			RawResult: json.RawMessage(outputs[i]),
		}
		if err := decodeJournalValue(inputs[i], &call.Args); err != nil {
			return calls, fmt.Errorf("decode %s input %d: %w", name, i, err)
		}
		if err := decodeJournalValue(outputs[i], &call.Result); err != nil {
			return calls, fmt.Errorf("decode %s output %d: %w", name, i, err)
		}
		calls = append(calls, call)
	}
	if len(inputs) != len(outputs) {
		return calls, fmt.Errorf("%w: %s has %d inputs and %d outputs", ErrJournalMisaligned, name, len(inputs), len(outputs))
	}
	return calls, nil
}

func encodeJournalArgs(args []any) ([]byte, error) {
	items := make([]json.RawMessage, 0, len(args))
	for _, arg := range args {
		item, err := encodeJournalValue(arg)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return json.Marshal(items)
}

// encodeJournalValue renders v as JSON. Non-finite floats are written as
// their text form ("NaN", "+Inf", "-Inf"). Values JSON rejects fall back to
// their stored encoding: a string when it is UTF-8, base64 otherwise.
func encodeJournalValue(v any) (json.RawMessage, error) {
	switch f := v.(type) {
	case float64:
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return json.Marshal(strconv.FormatFloat(f, 'f', -1, 64))
		}
	case float32:
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return json.Marshal(strconv.FormatFloat(float64(f), 'f', -1, 32))
		}
	}
	body, err := json.Marshal(v)
	if err == nil {
		return body, nil
	}
	native, encErr := EncodeValue(v)
	if encErr != nil {
		return nil, err
	}
	if utf8.Valid(native) {
		return json.Marshal(string(native))
	}
	return json.Marshal(native)
}

func decodeJournalValue(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after journal entry")
	}
	return nil
}
