// Package ledcontroller binds LED controller hardware to light entities.
//
// It sits between the device driver (package driver) and the host platform
// (package platform):
//
//	┌──────────────┐   ┌──────────────┐   ┌──────────────┐   ┌─────────────┐
//	│    Light     │──▶│  Controller  │──▶│   Handler    │──▶│  TCP device │
//	│ (light.go)   │   │(controller.go│   │  (driver)    │   │             │
//	│ tri-state,   │   │ Multivision, │   │ one per      │   └─────────────┘
//	│ read-back    │   │ OnlyGlass)   │   │ endpoint     │
//	└──────────────┘   └──────────────┘   └──────▲───────┘
//	                                              │
//	                   ┌──────────────┐   ┌──────┴───────┐
//	                   │   Manager    │──▶│   Registry   │
//	                   │ (manager.go) │   │(registry.go) │
//	                   └──────────────┘   └──────────────┘
//
// # Handler sharing
//
// The Registry holds at most one driver.Handler per driver.Endpoint.
// Several configured devices that point at the same host:port share that
// handler and therefore one TCP connection. ResolveOrCreate is atomic, so
// concurrent entry setups cannot race two handlers onto one endpoint.
//
// Handlers live until Registry.Close, which the application calls on
// shutdown. Unloading a config entry does not close its handler.
//
// # Connect sequencing
//
// EnsureConnected attempts Connect exactly once. A failure, or a Connect
// that returns nil while leaving the handler disconnected, is reported as
// KindNotReady. There is no internal retry: the host reschedules setup.
//
// # Errors
//
// Every error returned by this package is an *Error with a closed Kind:
//
//	KindNotReady  connect failed or left the handler unconnected
//	KindLookup    no handler registered for an endpoint
//	KindCommand   a brightness write failed
//	KindUpdate    a brightness read failed
//	KindNoData    the device has not reported usable data yet
//
// Light translates these into platform.ErrCommandFailed and
// platform.ErrUpdateFailed so driver error identities never reach the host.
//
// # Thread Safety
//
// Registry, Manager, Controller implementations and Light are safe for
// concurrent use. Exchanges on a shared handler are serialised by the
// handler; Light additionally serialises its own command and refresh
// sequences so back-to-back commands resolve in call order.
package ledcontroller
