package headless

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/domain/vfs"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/sandbox/relay"
	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/types"
	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
)

const preludeName = "(console)"

// prelude installs the console and the argument serializer. serialize
// matches the preview document's shim so both paths format alike.
const prelude = `(function (g) {
  function serialize(v) {
    if (v instanceof Error) return v.name + ': ' + v.message;
    if (v === undefined) return 'undefined';
    if (typeof v === 'function' || typeof v === 'symbol' || typeof v === 'bigint') return String(v);
    try { JSON.stringify(v); return v; } catch (e) { return String(v); }
  }
  function format(args) {
    return JSON.stringify(Array.prototype.map.call(args, serialize));
  }
  var emit = g.__vibeEmit;
  var console = {};
  ['log', 'warn', 'error', 'info', 'debug'].forEach(function (method) {
    console[method] = function () { emit(method, format(arguments)); };
  });
  g.console = console;
  g.window = g;
  g.self = g;
  g.__vibeFormat = format;
})(this);`

var errTimedOut = errors.New("execution timed out")

type timer struct {
	id     int64
	at     int64
	every  int64
	repeat bool
	fn     goja.Callable
	args   []goja.Value
}

// Runtime executes files in a fresh goja VM per call
type Runtime struct {
	config Config
	mu     sync.Mutex

	vm       *goja.Runtime
	format   goja.Callable
	current  string
	messages []types.ConsoleMessage

	clock   int64
	nextID  int64
	timers  []*timer
	pending []*goja.Promise
}

// New creates a runtime
func New(config Config) *Runtime {
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.MaxTimerFires <= 0 {
		config.MaxTimerFires = DefaultConfig().MaxTimerFires
	}
	return &Runtime{config: config}
}

// Execute runs the plain JavaScript files among files in order and collects
// what they print. Only a cancelled ctx is returned as an error; script
// failures are reported as messages.
func (r *Runtime) Execute(ctx context.Context, files []*vfs.Node) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.reset(); err != nil {
		return nil, err
	}

	start := time.Now()
	vm := r.vm
	deadline := time.AfterFunc(r.config.Timeout, func() { vm.Interrupt(errTimedOut) })
	defer deadline.Stop()
	stop := context.AfterFunc(ctx, func() { vm.Interrupt(ctx.Err()) })
	defer stop()

	result := &Result{Files: []string{}}
	var halted error
	for _, f := range files {
		if f.IsFolder() {
			continue
		}
		if !runnable(f) {
			if f.Language == vfs.LangJSX || f.Language == vfs.LangTSX || f.Ext() == ".mjs" {
				result.Skipped = append(result.Skipped, f.ID)
			}
			continue
		}
		result.Files = append(result.Files, f.ID)
		if halted = r.runFile(f); halted != nil {
			break
		}
	}
	if halted == nil {
		halted = r.drainTimers()
	}
	stoppedIn := r.current
	r.current = ""
	r.flushRejections()

	if halted != nil {
		var interrupted *goja.InterruptedError
		if errors.As(halted, &interrupted) && interrupted.Value() != errTimedOut {
			return nil, ctx.Err()
		}
		result.TimedOut = true
		if stoppedIn == "" && len(result.Files) > 0 {
			stoppedIn = result.Files[len(result.Files)-1]
		}
		r.push(types.MethodError, fmt.Sprintf("Execution timed out after %s", r.config.Timeout), stoppedIn)
	}

	result.Messages = r.messages
	result.Duration = time.Since(start)
	return result, nil
}

func runnable(f *vfs.Node) bool {
	return f.Language == vfs.LangJavaScript && f.Ext() != ".mjs"
}

func (r *Runtime) reset() error {
	vm := goja.New()
	if r.config.MaxCallStack > 0 {
		vm.SetMaxCallStackSize(r.config.MaxCallStack)
	}

	r.vm = vm
	r.current = ""
	r.messages = []types.ConsoleMessage{}
	r.clock, r.nextID = 0, 0
	r.timers = nil
	r.pending = nil

	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}
	if err := vm.Set("__vibeEmit", r.emit); err != nil {
		return err
	}
	if err := vm.Set("setTimeout", r.schedule(false)); err != nil {
		return err
	}
	if err := vm.Set("setInterval", r.schedule(true)); err != nil {
		return err
	}
	if err := vm.Set("clearTimeout", r.cancel); err != nil {
		return err
	}
	if err := vm.Set("clearInterval", r.cancel); err != nil {
		return err
	}
	vm.SetPromiseRejectionTracker(r.trackRejection)

	prog, err := goja.Compile(preludeName, prelude, false)
	if err != nil {
		return fmt.Errorf("compile console prelude: %w", err)
	}
	if _, err := vm.RunProgram(prog); err != nil {
		return fmt.Errorf("install console prelude: %w", err)
	}

	format, ok := goja.AssertFunction(vm.Get("__vibeFormat"))
	if !ok {
		return errors.New("console prelude did not install a formatter")
	}
	r.format = format
	global := vm.GlobalObject()
	_ = global.Delete("__vibeEmit")
	_ = global.Delete("__vibeFormat")
	return nil
}

func (r *Runtime) runFile(f *vfs.Node) error {
	r.current = f.ID
	defer r.flushRejections()

	prog, err := goja.Compile(f.ID, f.Content, false)
	if err != nil {
		r.push(types.MethodError, "Uncaught "+err.Error(), f.ID)
		return nil
	}
	_, err = r.vm.RunProgram(prog)
	return r.report(err, f.ID)
}

// report turns a script error into one error message. Interruptions are
// returned so the caller stops.
func (r *Runtime) report(err error, file string) error {
	if err == nil {
		return nil
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return err
	}

	var ex *goja.Exception
	if !errors.As(err, &ex) {
		r.push(types.MethodError, err.Error(), file)
		return nil
	}

	text := "undefined"
	if v := ex.Value(); v != nil {
		text = v.String()
	}
	src, line := origin(ex, file)
	text = "Uncaught " + text
	if line > 0 {
		text += " (line " + strconv.Itoa(line) + ")"
	}
	r.push(types.MethodError, text, src)
	return nil
}

// origin finds the innermost script frame of an exception
func origin(ex *goja.Exception, fallback string) (string, int) {
	for _, frame := range ex.Stack() {
		name := frame.SrcName()
		if name == "" || name == "<native>" || name == preludeName {
			continue
		}
		return name, frame.Position().Line
	}
	return fallback, 0
}

func (r *Runtime) emit(method, payload string) {
	var args []json.RawMessage
	if err := sonic.UnmarshalString(payload, &args); err != nil {
		args = []json.RawMessage{json.RawMessage(strconv.Quote(payload))}
	}
	r.messages = append(r.messages, relay.Format(types.RelayMessage{
		Type:   relay.TypeConsole,
		Method: method,
		Args:   args,
		File:   r.current,
	}))
}

func (r *Runtime) push(method types.ConsoleMethod, text, file string) {
	r.messages = append(r.messages, types.ConsoleMessage{Method: method, Text: text, SourceFile: file})
}

func (r *Runtime) schedule(repeat bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			return r.vm.ToValue(0)
		}
		delay := call.Argument(1).ToInteger()
		if delay < 0 {
			delay = 0
		}
		var args []goja.Value
		if len(call.Arguments) > 2 {
			args = append(args, call.Arguments[2:]...)
		}

		r.nextID++
		r.timers = append(r.timers, &timer{
			id:     r.nextID,
			at:     r.clock + delay,
			every:  delay,
			repeat: repeat,
			fn:     fn,
			args:   args,
		})
		return r.vm.ToValue(r.nextID)
	}
}

func (r *Runtime) cancel(call goja.FunctionCall) goja.Value {
	timerID := call.Argument(0).ToInteger()
	for i, t := range r.timers {
		if t.id == timerID {
			r.timers = append(r.timers[:i], r.timers[i+1:]...)
			break
		}
	}
	return goja.Undefined()
}

// next removes the earliest timer; ties fire in creation order
func (r *Runtime) next() *timer {
	best := 0
	for i, t := range r.timers {
		if t.at < r.timers[best].at || (t.at == r.timers[best].at && t.id < r.timers[best].id) {
			best = i
		}
	}
	t := r.timers[best]
	r.timers = append(r.timers[:best], r.timers[best+1:]...)
	return t
}

// drainTimers fires queued callbacks on a virtual clock
func (r *Runtime) drainTimers() error {
	r.current = ""
	for fired := 0; len(r.timers) > 0; fired++ {
		if fired >= r.config.MaxTimerFires {
			r.push(types.MethodWarn, fmt.Sprintf("Stopped after %d timer callbacks", fired), "")
			r.timers = nil
			return nil
		}

		t := r.next()
		r.clock = t.at
		if t.repeat {
			step := t.every
			if step < 1 {
				step = 1
			}
			t.at = r.clock + step
			r.timers = append(r.timers, t)
		}

		_, err := t.fn(goja.Undefined(), t.args...)
		if err := r.report(err, ""); err != nil {
			return err
		}
		r.flushRejections()
	}
	return nil
}

func (r *Runtime) trackRejection(p *goja.Promise, op goja.PromiseRejectionOperation) {
	switch op {
	case goja.PromiseRejectionReject:
		r.pending = append(r.pending, p)
	case goja.PromiseRejectionHandle:
		for i, q := range r.pending {
			if q == p {
				r.pending = append(r.pending[:i], r.pending[i+1:]...)
				break
			}
		}
	}
}

func (r *Runtime) flushRejections() {
	pending := r.pending
	r.pending = nil
	for _, p := range pending {
		text := "undefined"
		if out, err := r.format(goja.Undefined(), r.vm.NewArray(p.Result())); err == nil {
			var args []json.RawMessage
			if sonic.UnmarshalString(out.String(), &args) == nil {
				text = relay.JoinArgs(args)
			}
		}
		r.push(types.MethodError, "Unhandled promise rejection: "+text, "")
	}
}
