package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/chronod/internal/store"
	"github.com/roach88/chronod/internal/wire"
)

// Reader is the query side of the store. *store.Store satisfies it.
type Reader interface {
	FindClockInfoByMessageID(ctx context.Context, messageID string) (store.ClockInfoRecord, error)
	FindMessageByID(ctx context.Context, messageID string) (store.MessageRecord, error)
	FindClockInfosAfter(ctx context.Context, cursor int64, limit int) ([]store.ClockInfoRecord, error)
	FindMergeLogsAfter(ctx context.Context, cursor int64, limit int) ([]store.MergeLogRecord, error)
	FindMessagesAfter(ctx context.Context, cursor int64, limit int) ([]store.MessageRecord, error)
	CountClockInfos(ctx context.Context) (uint64, error)
	CountMergeLogs(ctx context.Context) (uint64, error)
	CountMessages(ctx context.Context) (uint64, error)
}

// DefaultReadMaximum caps cursor scans when no maximum is configured.
const DefaultReadMaximum = 100

// Facade answers gateway requests from a Reader.
//
// Thread-safety: Facade is stateless apart from its configuration and safe
// for concurrent use.
type Facade struct {
	reader  Reader
	readMax int
	logger  *slog.Logger
}

// NewFacade creates a facade. readMaximum <= 0 selects DefaultReadMaximum.
func NewFacade(r Reader, readMaximum int, logger *slog.Logger) *Facade {
	if readMaximum <= 0 {
		readMaximum = DefaultReadMaximum
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Facade{reader: r, readMax: readMaximum, logger: logger}
}

// ReadMaximum returns the cap applied to cursor scans.
func (f *Facade) ReadMaximum() int {
	return f.readMax
}

// Limit clamps a requested batch size: 0 and values above the maximum both
// select the maximum.
func (f *Facade) Limit(requested uint32) int {
	if requested == 0 || int64(requested) > int64(f.readMax) {
		return f.readMax
	}
	return int(requested)
}

// ClockInfo returns the snapshot recorded for a message id.
func (f *Facade) ClockInfo(ctx context.Context, messageID string) (store.ClockInfoRecord, error) {
	if messageID == "" {
		return store.ClockInfoRecord{}, fmt.Errorf("%w: message id required", ErrInvalid)
	}
	return f.reader.FindClockInfoByMessageID(ctx, messageID)
}

// Message returns the application message with the given id.
func (f *Facade) Message(ctx context.Context, messageID string) (store.MessageRecord, error) {
	if messageID == "" {
		return store.MessageRecord{}, fmt.Errorf("%w: message id required", ErrInvalid)
	}
	return f.reader.FindMessageByID(ctx, messageID)
}

// ClockInfos returns the next page of snapshots after cursor.
func (f *Facade) ClockInfos(ctx context.Context, after int64, limit uint32) ([]store.ClockInfoRecord, error) {
	return f.reader.FindClockInfosAfter(ctx, after, f.Limit(limit))
}

// MergeLogs returns the next page of merge logs after cursor.
func (f *Facade) MergeLogs(ctx context.Context, after int64, limit uint32) ([]store.MergeLogRecord, error) {
	return f.reader.FindMergeLogsAfter(ctx, after, f.Limit(limit))
}

// Messages returns the next page of messages after cursor.
func (f *Facade) Messages(ctx context.Context, after int64, limit uint32) ([]store.MessageRecord, error) {
	return f.reader.FindMessagesAfter(ctx, after, f.Limit(limit))
}

// Status returns the totals of every record kind.
func (f *Facade) Status(ctx context.Context) (wire.Status, error) {
	var s wire.Status
	var err error
	if s.ClockInfos, err = f.reader.CountClockInfos(ctx); err != nil {
		return wire.Status{}, err
	}
	if s.MergeLogs, err = f.reader.CountMergeLogs(ctx); err != nil {
		return wire.Status{}, err
	}
	if s.Messages, err = f.reader.CountMessages(ctx); err != nil {
		return wire.Status{}, err
	}
	return s, nil
}

// HandleBytes decodes a wire request, serves it and encodes the response.
// Undecodable input yields a CodeInvalid response, never an error.
func (f *Facade) HandleBytes(ctx context.Context, b []byte) []byte {
	req, err := wire.UnmarshalGatewayRequest(b)
	if err != nil {
		f.logger.Warn("gateway request decode failed", "error", err)
		return wire.MarshalGatewayResponse(failure("", fmt.Errorf("%w: %v", ErrInvalid, err)))
	}
	return wire.MarshalGatewayResponse(f.Handle(ctx, req))
}

// Handle serves a decoded request. The request id is echoed back.
func (f *Facade) Handle(ctx context.Context, req wire.GatewayRequest) wire.GatewayResponse {
	kind, method := Kind(req.Kind), Method(req.Method)
	f.logger.Info("gateway query",
		"request_id", req.RequestID,
		"kind", kind.String(),
		"method", method.String(),
	)

	data, err := f.dispatch(ctx, kind, method, req)
	if err != nil {
		switch code := CodeFor(err); code {
		case CodeNotFound:
			f.logger.Debug("gateway lookup miss", "request_id", req.RequestID, "message_id", req.MessageID)
		case CodeInternal:
			f.logger.Error("gateway query failed", "request_id", req.RequestID, "error", err)
		default:
			f.logger.Warn("gateway request refused", "request_id", req.RequestID, "code", code.String(), "error", err)
		}
		return failure(req.RequestID, err)
	}

	return wire.GatewayResponse{
		RequestID: req.RequestID,
		Success:   true,
		Code:      uint32(CodeOK),
		Data:      data,
	}
}

func (f *Facade) dispatch(ctx context.Context, kind Kind, method Method, req wire.GatewayRequest) ([]byte, error) {
	if !method.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalid, method)
	}
	if method == MethodStatus {
		s, err := f.Status(ctx)
		if err != nil {
			return nil, err
		}
		return wire.MarshalStatus(s), nil
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalid, kind)
	}

	switch method {
	case MethodByID:
		return f.byID(ctx, kind, req.MessageID)
	case MethodByCursor:
		return f.byCursor(ctx, kind, req.After, req.Limit)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalid, method)
	}
}

func (f *Facade) byID(ctx context.Context, kind Kind, messageID string) ([]byte, error) {
	switch kind {
	case KindClockInfo:
		rec, err := f.ClockInfo(ctx, messageID)
		if err != nil {
			return nil, err
		}
		return wire.MarshalClockInfo(rec.ClockInfo), nil
	case KindMessage:
		rec, err := f.Message(ctx, messageID)
		if err != nil {
			return nil, err
		}
		return wire.MarshalMessage(rec.ApplicationMessage), nil
	case KindMergeLog:
		return nil, fmt.Errorf("%w: %s %s", ErrUnsupported, kind, MethodByID)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalid, kind)
	}
}

func (f *Facade) byCursor(ctx context.Context, kind Kind, after int64, limit uint32) ([]byte, error) {
	switch kind {
	case KindClockInfo:
		recs, err := f.ClockInfos(ctx, after, limit)
		if err != nil {
			return nil, err
		}
		entries := make([]wire.ClockInfoEntry, len(recs))
		for i, r := range recs {
			entries[i] = wire.ClockInfoEntry{Seq: r.Seq, Info: r.ClockInfo}
		}
		return wire.MarshalClockInfoPage(entries), nil
	case KindMergeLog:
		recs, err := f.MergeLogs(ctx, after, limit)
		if err != nil {
			return nil, err
		}
		entries := make([]wire.MergeLogEntry, len(recs))
		for i, r := range recs {
			entries[i] = wire.MergeLogEntry{Seq: r.Seq, Log: r.MergeLog}
		}
		return wire.MarshalMergeLogPage(entries), nil
	case KindMessage:
		recs, err := f.Messages(ctx, after, limit)
		if err != nil {
			return nil, err
		}
		entries := make([]wire.MessageEntry, len(recs))
		for i, r := range recs {
			entries[i] = wire.MessageEntry{Seq: r.Seq, Message: r.ApplicationMessage}
		}
		return wire.MarshalMessagePage(entries), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalid, kind)
	}
}

func failure(requestID string, err error) wire.GatewayResponse {
	return wire.GatewayResponse{
		RequestID: requestID,
		Success:   false,
		Code:      uint32(CodeFor(err)),
		Message:   err.Error(),
	}
}
