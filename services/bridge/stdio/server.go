// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stdio connects a long-lived editor process to the command
// dispatcher over newline-delimited JSON on stdin and stdout.
//
// The editor sends one request per command with the buffer, carets and
// optionally its tokens. The bridge answers with {"handled": bool} after
// sending the command's effects as notifications. Showing a menu is the one
// round trip: the bridge sends a "choose" request and waits for the reply.
//
// Stdout carries only protocol messages; logs go to stderr.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/ternbridge/services/bridge/commands"
	"github.com/AleutianAI/ternbridge/services/bridge/lexer"
	"github.com/AleutianAI/ternbridge/services/bridge/project"
	"github.com/AleutianAI/ternbridge/services/bridge/watch"
)

// DefaultMaxLineSize bounds one incoming message. Requests carry the whole
// buffer, so it is generous.
const DefaultMaxLineSize = 32 << 20

var (
	// ErrClosed is returned for bridge requests once the editor's input ended.
	ErrClosed = errors.New("editor connection closed")

	errShutdown    = errors.New("shutdown requested")
	errInputClosed = errors.New("input closed")
)

type commandFunc func(*commands.Dispatcher, context.Context, commands.Host) bool

// commandTable maps request methods onto dispatcher handlers.
var commandTable = map[string]commandFunc{
	commands.CommandComplete:          (*commands.Dispatcher).Complete,
	commands.CommandGotoDefinition:    (*commands.Dispatcher).GotoDefinition,
	commands.CommandShowSignature:     (*commands.Dispatcher).ShowSignature,
	commands.CommandShowReferences:    (*commands.Dispatcher).ShowReferences,
	commands.CommandShowDocstring:     (*commands.Dispatcher).ShowDocstring,
	commands.CommandOpenProjectConfig: (*commands.Dispatcher).OpenProjectConfig,
}

// Options configure a Server.
type Options struct {
	// Finder resolves the project directory when a request carries none.
	Finder project.Finder

	// Events delivers template changes. Nil disables watching.
	Events <-chan watch.Change

	// Lexer tokenizes buffers sent without tokens. Nil uses lexer.New(0).
	Lexer *lexer.Lexer

	// MaxLineSize bounds one incoming message. Zero uses DefaultMaxLineSize.
	MaxLineSize int

	Logger *slog.Logger
}

// =============================================================================
// SERVER
// =============================================================================

// Server runs the NDJSON loop.
//
// Description:
//
//	A reader goroutine decodes stdin. Replies to bridge requests are routed
//	straight to the waiting call; everything else is queued for a single
//	worker, which also receives template changes, so commands and restarts
//	never overlap.
//
// Thread Safety:
//
//	Notify and NotifyError are safe for concurrent use. Serve must be
//	called once.
type Server struct {
	dispatcher *commands.Dispatcher
	in         io.Reader
	opts       Options
	logger     *slog.Logger

	writeMu sync.Mutex
	enc     *json.Encoder

	pendingMu sync.Mutex
	pending   map[string]chan Message

	queue      *inbox
	readerDone chan struct{}
}

// NewServer creates a Server reading requests from in and writing to out.
func NewServer(d *commands.Dispatcher, in io.Reader, out io.Writer, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxLineSize <= 0 {
		opts.MaxLineSize = DefaultMaxLineSize
	}
	return &Server{
		dispatcher: d,
		in:         in,
		opts:       opts,
		logger:     opts.Logger,
		enc:        json.NewEncoder(out),
		pending:    make(map[string]chan Message),
		queue:      newInbox(),
		readerDone: make(chan struct{}),
	}
}

// Serve runs until the editor sends "shutdown", closes stdin, or ctx ends.
//
// Description:
//
//	The tern session is stopped before Serve returns. Reading stdin cannot
//	be interrupted, so the reader goroutine outlives a cancelled Serve until
//	the next line or EOF.
//
// Outputs:
//
//	error - nil on shutdown or EOF, ctx.Err() on cancellation.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}
	defer func() {
		if err := s.dispatcher.Shutdown(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("Failed to stop tern", slog.String("error", err.Error()))
		}
	}()

	go s.read()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.work(gctx)
	})
	if s.opts.Events != nil {
		g.Go(func() error {
			return s.forward(gctx, s.opts.Events)
		})
	}

	err := g.Wait()
	if errors.Is(err, errShutdown) || errors.Is(err, errInputClosed) {
		return nil
	}
	return err
}

// Notify sends a notification to the editor.
func (s *Server) Notify(method string, params interface{}) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal %s params: %w", method, err)
	}
	return s.send(Message{JSONRPC: JSONRPCVersion, Method: method, Params: raw})
}

// NotifyError shows a session failure to the user. It implements
// tern.Notifier.
func (s *Server) NotifyError(err error) {
	if nerr := s.Notify(MethodAlert, TextParams{Message: "Tern: " + err.Error()}); nerr != nil {
		s.logger.Warn("Failed to report tern error", slog.String("error", nerr.Error()))
	}
}

func (s *Server) send(msg Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.enc.Encode(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// =============================================================================
// READING
// =============================================================================

// read decodes stdin until EOF, then closes the queue.
func (s *Server) read() {
	defer func() {
		close(s.readerDone)
		s.queue.close()
	}()

	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), s.opts.MaxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			s.logger.Warn("Malformed message", slog.String("error", err.Error()))
			s.replyError(json.RawMessage("null"), CodeParseError, "parse error: "+err.Error())
			continue
		}

		if msg.isResponse() {
			s.resolve(msg)
			continue
		}
		s.queue.push(job{msg: msg})
	}

	if err := scanner.Err(); err != nil {
		s.logger.Error("Stopped reading editor input", slog.String("error", err.Error()))
	}
}

// resolve hands a response to the call waiting for it.
func (s *Server) resolve(msg Message) {
	var id string
	if err := json.Unmarshal(msg.ID, &id); err != nil {
		s.logger.Debug("Response with foreign id", slog.String("id", string(msg.ID)))
		return
	}

	s.pendingMu.Lock()
	ch, ok := s.pending[id]
	delete(s.pending, id)
	s.pendingMu.Unlock()

	if !ok {
		s.logger.Debug("Response for unknown request", slog.String("id", id))
		return
	}
	ch <- msg
}

// call sends a request to the editor and waits for the reply.
func (s *Server) call(ctx context.Context, method string, params interface{}) (Message, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s params: %w", method, err)
	}

	id := uuid.NewString()
	rawID, _ := json.Marshal(id)
	ch := make(chan Message, 1)

	s.pendingMu.Lock()
	s.pending[id] = ch
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, id)
		s.pendingMu.Unlock()
	}()

	if err := s.send(Message{JSONRPC: JSONRPCVersion, ID: rawID, Method: method, Params: raw}); err != nil {
		return Message{}, err
	}

	select {
	case reply := <-ch:
		return reply, nil
	case <-s.readerDone:
		return Message{}, ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// =============================================================================
// WORKING
// =============================================================================

// forward queues template changes behind the pending requests.
func (s *Server) forward(ctx context.Context, events <-chan watch.Change) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-events:
			if !ok {
				return nil
			}
			s.queue.push(job{change: &change})
		}
	}
}

// work handles queued jobs one at a time.
func (s *Server) work(ctx context.Context) error {
	for {
		j, ok, err := s.queue.pop(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return errInputClosed
		}

		if j.change != nil {
			s.dispatcher.TemplateChanged(ctx, j.change.Path)
			continue
		}
		if err := s.handle(ctx, j.msg); err != nil {
			return err
		}
	}
}

// handle runs one editor message. Only shutdown ends the loop.
func (s *Server) handle(ctx context.Context, msg Message) error {
	if msg.isNotification() {
		if msg.Method == MethodShutdown {
			return errShutdown
		}
		s.logger.Debug("Ignoring notification", slog.String("method", msg.Method))
		return nil
	}
	if msg.Method == "" {
		s.replyError(msg.ID, CodeInvalidRequest, "missing method")
		return nil
	}

	switch msg.Method {
	case MethodShutdown:
		s.reply(msg.ID, CommandResult{Handled: true})
		return errShutdown

	case commands.CommandRestartSession:
		host := s.hostFor(ctx, CommandParams{})
		s.reply(msg.ID, CommandResult{Handled: s.dispatcher.RestartSession(ctx, host)})
		return nil
	}

	run, ok := commandTable[msg.Method]
	if !ok {
		s.replyError(msg.ID, CodeMethodNotFound, "unknown method: "+msg.Method)
		return nil
	}

	var params CommandParams
	if len(msg.Params) == 0 {
		s.replyError(msg.ID, CodeInvalidParams, "missing params")
		return nil
	}
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.replyError(msg.ID, CodeInvalidParams, "invalid params: "+err.Error())
		return nil
	}
	params.normalize()

	handled := run(s.dispatcher, ctx, s.hostFor(ctx, params))
	s.reply(msg.ID, CommandResult{Handled: handled})
	return nil
}

// hostFor builds the host for one request. A project directory sent by the
// editor wins over the resolver.
func (s *Server) hostFor(ctx context.Context, p CommandParams) *requestHost {
	dir, ok := p.ProjectDir, p.ProjectDir != ""
	if !ok && p.Filename != "" {
		dir, ok = s.opts.Finder.Find(p.Filename)
	}
	return &requestHost{
		Buffer: &commands.Buffer{
			Name:      p.Filename,
			Content:   p.Text,
			CaretList: p.Carets,
			TokenList: p.Tokens,
			Lexer:     s.opts.Lexer,
		},
		ctx:        ctx,
		server:     s,
		projectDir: dir,
		hasProject: ok,
	}
}

func (s *Server) reply(id json.RawMessage, result interface{}) {
	raw, err := json.Marshal(result)
	if err != nil {
		s.replyError(id, CodeInternalError, err.Error())
		return
	}
	if err := s.send(Message{JSONRPC: JSONRPCVersion, ID: id, Result: raw}); err != nil {
		s.logger.Warn("Failed to answer editor", slog.String("error", err.Error()))
	}
}

func (s *Server) replyError(id json.RawMessage, code int, message string) {
	msg := Message{JSONRPC: JSONRPCVersion, ID: id, Error: &Error{Code: code, Message: message}}
	if err := s.send(msg); err != nil {
		s.logger.Warn("Failed to answer editor", slog.String("error", err.Error()))
	}
}
