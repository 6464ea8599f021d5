// Package dispatcher implements the request dispatcher (C8): a
// line-delimited JSON protocol over a pair of byte streams that multiplexes
// requests across a store.Store and serialises output under one stream-wide
// lock. Validation (C10) covers the request envelope, struct response DTOs,
// and the data of add_game, add_state, add_player, add_action_generator and
// run_games; the other routes only decode their data and do not check its
// validate tags.
package dispatcher

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"reflect"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/boardgameai/mctsd/store"
)

// ErrUnknownType is returned when a request's "type" field names no
// registered route.
var ErrUnknownType = errors.New("unknown request type")

// ErrSchema mirrors the other packages' schema-error sentinel for
// malformed envelopes and request/response DTOs.
var ErrSchema = errors.New("schema error")

// Request is the envelope every line of input must parse as.
type Request struct {
	ID   json.RawMessage `json:"id,omitempty"`
	Type string          `json:"type" validate:"required"`
	Data json.RawMessage `json:"data"`
}

type successResponse struct {
	ID      json.RawMessage `json:"id,omitempty"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type failureResponse struct {
	ID      json.RawMessage `json:"id,omitempty"`
	Success bool            `json:"success"`
	ErrMsg  string          `json:"errMsg"`
}

// routeFunc handles one request type's data payload, returning the struct
// to marshal as the response's "data" field.
type routeFunc func(ctx context.Context, d *Dispatcher, data json.RawMessage) (interface{}, error)

// Dispatcher owns the shared store, logger, and validator every route
// handler is invoked with, plus the output stream's serialising mutex.
type Dispatcher struct {
	Store    *store.Store
	log      *zap.SugaredLogger
	validate *validator.Validate

	out   io.Writer
	outMu sync.Mutex
}

// New builds a Dispatcher writing responses to out.
func New(st *store.Store, log *zap.SugaredLogger, out io.Writer) *Dispatcher {
	return &Dispatcher{Store: st, log: log, validate: validator.New(), out: out}
}

// Run reads line-delimited JSON requests from in until EOF, serving each on
// its own goroutine so a slow request (a sleeping echo, a long
// get_best_action) never blocks the reader loop, per spec.md §4.8. Returns
// once every in-flight request has been served.
func (d *Dispatcher) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var wg sync.WaitGroup
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		if len(line) == 0 {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.handleLine(ctx, line)
		}()
	}
	wg.Wait()
	return scanner.Err()
}

func (d *Dispatcher) handleLine(ctx context.Context, line []byte) {
	start := time.Now()

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		d.writeFailure(nil, errors.Wrap(ErrSchema, err.Error()))
		return
	}
	if err := d.validate.Struct(req); err != nil {
		d.writeFailure(req.ID, errors.Wrap(ErrSchema, err.Error()))
		return
	}

	route, ok := routes[req.Type]
	if !ok {
		d.writeFailure(req.ID, errors.Wrapf(ErrUnknownType, "request type %q", req.Type))
		return
	}

	result, err := route(ctx, d, req.Data)
	d.log.Debugw("handled request",
		"reqType", req.Type,
		"durationMS", time.Since(start).Milliseconds(),
		"success", err == nil,
	)
	if err != nil {
		d.writeFailure(req.ID, err)
		return
	}
	// Struct-tagged response DTOs are schema-validated before emission;
	// implementation-defined payloads (query_details) and raw pass-throughs
	// (echo) are opaque by design and skip this check.
	if reflect.ValueOf(result).Kind() == reflect.Struct {
		if err := d.validate.Struct(result); err != nil {
			d.writeFailure(req.ID, errors.Wrap(ErrSchema, "response: "+err.Error()))
			return
		}
	}

	body, err := json.Marshal(result)
	if err != nil {
		d.writeFailure(req.ID, err)
		return
	}
	d.writeLine(successResponse{ID: req.ID, Success: true, Data: body})
}

func (d *Dispatcher) writeFailure(id json.RawMessage, err error) {
	d.writeLine(failureResponse{ID: id, Success: false, ErrMsg: err.Error()})
}

func (d *Dispatcher) writeLine(v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		d.log.Errorw("failed to marshal response envelope", "error", err)
		return
	}
	d.outMu.Lock()
	defer d.outMu.Unlock()
	d.out.Write(body)
	d.out.Write([]byte("\n"))
}
