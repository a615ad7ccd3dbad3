// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/ternbridge/services/bridge/callsite"
	"github.com/AleutianAI/ternbridge/services/bridge/caret"
	"github.com/AleutianAI/ternbridge/services/bridge/render"
	"github.com/AleutianAI/ternbridge/services/bridge/telemetry"
	"github.com/AleutianAI/ternbridge/services/bridge/tern"
)

// Command names, used for spans, metrics and the stdio method table.
const (
	CommandComplete          = "complete"
	CommandGotoDefinition    = "definition"
	CommandShowSignature     = "calltip"
	CommandShowReferences    = "references"
	CommandShowDocstring     = "documentation"
	CommandOpenProjectConfig = "project_config"
	CommandRestartSession    = "restart"
)

// Options are presentation settings for the Dispatcher.
type Options struct {
	// GotoTopOffset is how many lines stay visible above a jump target.
	// Negative means render.DefaultTopLineOffset.
	GotoTopOffset int

	// CalltipLookback is how many lines above the caret are tokenized when
	// looking for the enclosing call.
	CalltipLookback int

	// CalltipDuration is how long a signature hint stays visible.
	CalltipDuration time.Duration
}

// DefaultOptions returns the stock presentation settings.
func DefaultOptions() Options {
	return Options{
		GotoTopOffset:   render.DefaultTopLineOffset,
		CalltipLookback: 20,
		CalltipDuration: 10 * time.Second,
	}
}

// =============================================================================
// DISPATCHER
// =============================================================================

// Dispatcher runs editor commands against one tern session.
//
// Description:
//
//	Each handler reads the editor state from the Host, queries the server
//	through Operations, and applies the answer back to the Host. Handlers
//	return whether the command was handled so the host can fall back to its
//	own behavior. No error ever escapes a handler: query failures are logged
//	and end as "no result", user-facing problems become UI messages.
//
// Thread Safety:
//
//	Safe for concurrent use. Handlers are serialized because the session
//	owns a single server process.
type Dispatcher struct {
	ops     *tern.Operations
	opts    Options
	logger  *slog.Logger
	mu      sync.Mutex
	stopped bool
}

// NewDispatcher creates a Dispatcher.
//
// Inputs:
//
//	ops - The typed query layer over the session.
//	opts - Presentation settings.
//	logger - Destination for command logs. Nil uses slog.Default().
func NewDispatcher(ops *tern.Operations, opts Options, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CalltipLookback < 0 {
		opts.CalltipLookback = 0
	}
	if opts.CalltipDuration <= 0 {
		opts.CalltipDuration = DefaultOptions().CalltipDuration
	}
	return &Dispatcher{ops: ops, opts: opts, logger: logger}
}

// Session returns the session the dispatcher drives.
func (d *Dispatcher) Session() *tern.Session {
	return d.ops.Session()
}

// params is the editor state every query needs.
type params struct {
	doc   tern.Document
	caret caret.Caret
	dir   string
}

// singleCaret returns the only caret, or false when there are zero or
// several. Multi-caret commands are silently ignored.
func singleCaret(h Editor) (caret.Caret, bool) {
	carets := h.Carets()
	if len(carets) != 1 {
		return caret.Caret{}, false
	}
	return caret.FromRaw(carets[0]), true
}

// paramsOf collects the query parameters from the host.
func paramsOf(h Host) (params, bool) {
	c, ok := singleCaret(h)
	if !ok {
		return params{}, false
	}
	dir, _ := h.ProjectDir()
	return params{
		doc:   tern.Document{Filename: h.Filename(), Text: h.Text()},
		caret: c,
		dir:   dir,
	}, true
}

// begin serializes a handler and opens its span.
func (d *Dispatcher) begin(ctx context.Context, name string) (context.Context, trace.Span, func(handled bool)) {
	d.mu.Lock()
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Dispatcher."+name,
		trace.WithAttributes(attribute.String("command", name)),
	)
	start := time.Now()
	return ctx, span, func(handled bool) {
		span.SetAttributes(attribute.Bool("handled", handled))
		span.End()
		recordCommand(ctx, name, time.Since(start), handled)
		d.mu.Unlock()
	}
}

// noResult logs a query failure that ends as "no result".
func (d *Dispatcher) noResult(ctx context.Context, span trace.Span, command string, err error) {
	telemetry.RecordError(span, err)
	level := slog.LevelDebug
	if !tern.IsNoResult(err) {
		level = slog.LevelWarn
	}
	d.logger.Log(ctx, level, "Command produced no result",
		slog.String("command", command),
		slog.String("error", err.Error()),
	)
}

// =============================================================================
// COMPLETE
// =============================================================================

// Complete shows completions for the word before the caret.
//
// Description:
//
//	Queries completions at the caret. The list replaces the word around the
//	caret. When nothing has been typed before the caret the list is
//	suppressed, except right after a dot where every property is offered.
//
// Outputs:
//
//	bool - False when there is no single caret or the query failed, so the
//	       host can run its own completion.
func (d *Dispatcher) Complete(ctx context.Context, h Host) (handled bool) {
	ctx, span, end := d.begin(ctx, CommandComplete)
	defer func() { end(handled) }()

	p, ok := paramsOf(h)
	if !ok {
		return false
	}

	res, err := d.ops.Completions(ctx, p.dir, p.doc, p.caret)
	if err != nil {
		d.noResult(ctx, span, CommandComplete, err)
		return false
	}

	left, right := render.ReplacementRange(res, p.caret, h.LineText(p.caret.End().Line))
	if left <= 0 && !res.IsProperty {
		return true
	}
	if len(res.Completions) == 0 {
		return true
	}

	h.ShowCompletions(render.FormatCompletions(res.Completions), left, right)
	telemetry.SetSpanOK(span)
	return true
}

// =============================================================================
// GOTO DEFINITION
// =============================================================================

// GotoDefinition jumps to where the expression under the caret is defined.
//
// Description:
//
//	The server reports the file relative to the project directory; it is
//	rebased before opening. A target file that does not exist is reported
//	with an alert. The view scrolls so a few lines stay visible above the
//	target.
//
// Outputs:
//
//	bool - Always true: the editor's own goto has nothing to add.
func (d *Dispatcher) GotoDefinition(ctx context.Context, h Host) bool {
	ctx, span, end := d.begin(ctx, CommandGotoDefinition)
	defer end(true)

	p, ok := paramsOf(h)
	if !ok {
		return true
	}

	res, err := d.ops.Definition(ctx, p.dir, p.doc, p.caret)
	if err != nil {
		d.noResult(ctx, span, CommandGotoDefinition, err)
		return true
	}
	if !res.HasLocation() {
		if res.URL != "" {
			h.Status("Defined externally: " + res.URL)
		}
		return true
	}

	d.jump(ctx, h, p.dir, res.File, res.Start)
	telemetry.SetSpanOK(span)
	return true
}

// jump opens file at pos and positions the view.
func (d *Dispatcher) jump(ctx context.Context, h Host, dir, file string, pos tern.Position) {
	target, err := render.ResolveTarget(dir, file, pos, d.opts.GotoTopOffset)
	if err != nil {
		if errors.Is(err, render.ErrMissingTargetFile) {
			h.Alert(fmt.Sprintf("Tern: cannot find file:\n%s\n\n"+
				"Open the file's project so its directory is used as the JavaScript project root.",
				missingPath(dir, file)))
		}
		return
	}

	if err := h.OpenFile(target.Path); err != nil {
		h.Alert(fmt.Sprintf("Tern: cannot open %s: %v", target.Path, err))
		return
	}
	h.SetTopLine(target.TopLine)
	h.SetCaret(target.Col, target.Line)
	h.Status("Goto file: " + target.Path)

	d.logger.InfoContext(ctx, "Go to definition",
		slog.String("file", target.Path),
		slog.Int("line", target.Line+1),
	)
}

// missingPath mirrors the path ResolveTarget checked.
func missingPath(dir, file string) string {
	if dir == "" || filepath.IsAbs(file) {
		return filepath.Clean(file)
	}
	return filepath.Join(dir, file)
}

// =============================================================================
// SIGNATURE
// =============================================================================

// ShowSignature shows the signature of the call the caret is inside.
//
// Description:
//
//	Tokenizes a few lines up to the caret, finds the identifier naming the
//	enclosing call, and asks the server for that identifier's type. A
//	function type "fn(a, b) -> c" is shown as "name(a, b) -> c". The
//	server's name is preferred; the token text is used when it has none.
//
// Outputs:
//
//	bool - True when a hint was shown.
func (d *Dispatcher) ShowSignature(ctx context.Context, h Host) (handled bool) {
	ctx, span, end := d.begin(ctx, CommandShowSignature)
	defer func() { end(handled) }()

	p, ok := paramsOf(h)
	if !ok {
		return false
	}

	at := p.caret.End()
	tokens, err := h.Tokens(ctx, max(0, at.Line-d.opts.CalltipLookback), at.Line)
	if err != nil {
		d.noResult(ctx, span, CommandShowSignature, err)
		return false
	}

	target, ok := callsite.Resolve(tokens, at)
	if !ok {
		return false
	}
	span.SetAttributes(attribute.String("callsite.target", target.Text))

	res, err := d.ops.Type(ctx, p.dir, p.doc, target.Span())
	if err != nil {
		d.noResult(ctx, span, CommandShowSignature, err)
		return false
	}
	if res.Type == "" {
		return false
	}

	name := res.Name
	if name == "" {
		name = target.Text
	}
	h.Hint(callsite.LabelSignature(name, res.Type), d.opts.CalltipDuration)
	telemetry.SetSpanOK(span)
	return true
}

// =============================================================================
// REFERENCES
// =============================================================================

// ShowReferences lists every use of the variable under the caret and jumps
// to the one the user picks.
//
// Description:
//
//	Nothing is queried when the caret touches no word character.
//
// Outputs:
//
//	bool - True when the server answered.
func (d *Dispatcher) ShowReferences(ctx context.Context, h Host) (handled bool) {
	ctx, span, end := d.begin(ctx, CommandShowReferences)
	defer func() { end(handled) }()

	p, ok := paramsOf(h)
	if !ok {
		return false
	}

	at := p.caret.End()
	if left, right := caret.WordBoundaries(h.LineText(at.Line), at.Col); left+right == 0 {
		return false
	}

	res, err := d.ops.References(ctx, p.dir, p.doc, p.caret)
	if err != nil {
		d.noResult(ctx, span, CommandShowReferences, err)
		return false
	}
	telemetry.SetSpanOK(span)

	if len(res.Refs) == 0 {
		h.Status("Tern: no usages found")
		return true
	}

	title := "Usages"
	if res.Name != "" {
		title = "Usages of " + res.Name
	}
	idx, ok := h.Choose(title, render.FormatReferences(res.Refs))
	if !ok || idx < 0 || idx >= len(res.Refs) {
		return true
	}

	ref := res.Refs[idx]
	d.jump(ctx, h, p.dir, ref.File, ref.Start)
	return true
}

// =============================================================================
// DOCUMENTATION
// =============================================================================

// ShowDocstring shows the documentation of the expression under the caret.
//
// Outputs:
//
//	bool - True when documentation was shown.
func (d *Dispatcher) ShowDocstring(ctx context.Context, h Host) (handled bool) {
	ctx, span, end := d.begin(ctx, CommandShowDocstring)
	defer func() { end(handled) }()

	p, ok := paramsOf(h)
	if !ok {
		return false
	}

	res, err := d.ops.Documentation(ctx, p.dir, p.doc, p.caret)
	if err != nil {
		d.noResult(ctx, span, CommandShowDocstring, err)
		return false
	}

	text := render.FormatDocumentation(res)
	if text == "" {
		h.Status("Tern: no documentation found")
		return false
	}
	h.Alert(text)
	telemetry.SetSpanOK(span)
	return true
}

// =============================================================================
// PROJECT AND SESSION
// =============================================================================

// OpenProjectConfig opens the project's config file, writing it from the
// template first when it does not exist yet.
//
// Outputs:
//
//	bool - True when a file was opened.
func (d *Dispatcher) OpenProjectConfig(ctx context.Context, h Host) (handled bool) {
	ctx, span, end := d.begin(ctx, CommandOpenProjectConfig)
	defer func() { end(handled) }()

	dir, ok := h.ProjectDir()
	if !ok {
		h.Status("Tern: no project is open")
		return false
	}

	prov := d.ops.Session().Provisioner()
	path := prov.Path(dir)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if _, err := prov.Provision(dir); err != nil {
			telemetry.RecordError(span, err)
			h.Alert(fmt.Sprintf("Tern: cannot write %s: %v", path, err))
			return false
		}
		d.logger.InfoContext(ctx, "Created project file", slog.String("path", path))
	}

	if err := h.OpenFile(path); err != nil {
		h.Alert(fmt.Sprintf("Tern: cannot open %s: %v", path, err))
		return false
	}
	h.Status("Tern project file: " + path)
	return true
}

// RestartSession restarts the analysis server against its current project.
// ui may be nil.
func (d *Dispatcher) RestartSession(ctx context.Context, ui UI) (handled bool) {
	ctx, span, end := d.begin(ctx, CommandRestartSession)
	defer func() { end(handled) }()

	if err := d.ops.Session().Restart(ctx); err != nil {
		telemetry.RecordError(span, err)
		if ui != nil {
			ui.Status("Tern: restart failed: " + err.Error())
		}
		return false
	}
	if ui != nil {
		ui.Status("Tern server restarted")
	}
	return true
}

// TemplateChanged restarts a running server so the edited template is
// provisioned into its project. A stopped server picks the template up on
// its next start anyway.
func (d *Dispatcher) TemplateChanged(ctx context.Context, path string) {
	if d.ops.Session().State() != tern.StateRunning {
		return
	}
	d.logger.InfoContext(ctx, "Project template changed, restarting tern", slog.String("template", path))
	d.RestartSession(ctx, nil)
}

// Shutdown stops the server. It is safe to call more than once.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return nil
	}
	d.stopped = true
	return d.ops.Session().Stop(ctx)
}
