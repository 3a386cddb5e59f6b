package unwind

// Disposition is the result a language handler returns to dispatch_exception
// or unwind (spec.md §4.F).
type Disposition uint8

const (
	ContinueExecution Disposition = iota
	ContinueSearch
	CollidedUnwind
)

// ExceptionRecord mirrors the minimal fields the dispatcher and handlers
// need: the exception code and the faulting address/context.
type ExceptionRecord struct {
	Code    uint32
	Address uint64
	Flags   uint32
}

const (
	flagUnwind       = 0x2
	flagExitUnwind   = 0x4
	flagTargetUnwind = 0x20
	flagCollided     = 0x40
)

// LanguageHandler is the callable contract a function's unwind info names:
// given the exception record, the establisher frame, the context, and an
// opaque dispatcher-context pointer, it decides how to proceed.
type LanguageHandler func(rec *ExceptionRecord, establisherFrame uint64, ctx *Context, dispatcherCtx interface{}) Disposition

// HandlerResolver maps a language-handler RVA + handler-data RVA pair
// (returned by VirtualUnwind) to a callable LanguageHandler, e.g. by
// dispatching on a fixed image-wide C-language handler registration.
type HandlerResolver func(imageBase uint64, handlerRVA, handlerDataRVA uint32) LanguageHandler

// ErrBadStack is the fatal condition raised when unwind walks off a null
// image base, hits a misaligned establisher frame, or steps past the
// target frame without reaching it (spec.md §4.F).
var ErrBadStack = "unwind: bad stack"

// DispatchException walks frames starting at rec.Address, invoking each
// frame's language handler when present, until a handler claims the
// exception or the walk bottoms out (spec.md §4.F).
func DispatchException(resolver FunctionEntryResolver, handlers HandlerResolver, mem Memory, rec *ExceptionRecord, ctx *Context) Disposition {
	for {
		imageBase, fn, info, _ := resolver.LookupFunctionEntry(ctx.RIP)
		if imageBase == 0 {
			panic(ErrBadStack)
		}

		frozen := *ctx
		result := VirtualUnwind(resolver, HandlerException, ctx.RIP, mem, ctx)

		if fn != nil && info != nil && result.HasLanguageHandler && handlers != nil {
			handler := handlers(imageBase, result.LanguageHandlerRVA, result.HandlerDataRVA)
			if handler != nil {
				switch handler(rec, result.EstablisherFrame, &frozen, nil) {
				case ContinueExecution:
					*ctx = frozen
					return ContinueExecution
				case CollidedUnwind:
					rec.Flags |= flagCollided
					continue
				case ContinueSearch:
					rec.Flags &^= flagCollided
				}
			}
		}

		if fn == nil {
			// Leaf frame already popped by VirtualUnwind; if RIP is now 0
			// there is nothing left to walk.
			if ctx.RIP == 0 {
				return ContinueSearch
			}
		}
	}
}

// Unwind performs the UNWIND pass (spec.md §4.F): walks from the current
// context to targetFrame (or to the end of the stack when targetFrame ==
// 0, i.e. EXIT_UNWIND), invoking each frame's termination handler, then
// transfers control to targetIP with returnValue in the return register.
func Unwind(resolver FunctionEntryResolver, handlers HandlerResolver, mem Memory, rec *ExceptionRecord, targetFrame, targetIP, returnValue uint64, ctx *Context, jumpTo func(ip, retval uint64)) {
	rec.Flags |= flagUnwind
	if targetFrame == 0 {
		rec.Flags |= flagExitUnwind
	}
	defer func() { rec.Flags &^= flagUnwind | flagExitUnwind }()

	for {
		imageBase, fn, info, _ := resolver.LookupFunctionEntry(ctx.RIP)
		if imageBase == 0 {
			panic(ErrBadStack)
		}

		result := VirtualUnwind(resolver, HandlerUnwind, ctx.RIP, mem, ctx)

		if targetFrame != 0 && result.EstablisherFrame > targetFrame {
			panic(ErrBadStack)
		}

		if fn != nil && info != nil && result.HasLanguageHandler && handlers != nil {
			handler := handlers(imageBase, result.LanguageHandlerRVA, result.HandlerDataRVA)
			if handler != nil {
				disp := handler(rec, result.EstablisherFrame, ctx, nil)
				if disp == CollidedUnwind {
					rec.Flags |= flagTargetUnwind
					continue
				}
			}
		}

		if targetFrame != 0 && result.EstablisherFrame == targetFrame {
			break
		}
		if fn == nil && targetFrame == 0 {
			break
		}
	}

	jumpTo(targetIP, returnValue)
}
