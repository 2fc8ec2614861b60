// Package platform is the light-entity host that integrations plug into.
//
// It provides what a home-automation core provides to a custom integration:
//
//   - Config entries persisted in SQLite (config_entries), created through
//     an integration's config flow (Integration.ValidateInput)
//   - Entry lifecycle: not_loaded → setup_in_progress → loaded, with
//     setup_retry (exponential backoff, cenkalti/backoff) when the
//     integration reports ErrNotReady and setup_error otherwise
//   - An entity table of Lights keyed by unique ID, with snapshots that
//     keep the last known brightness when an update fails
//   - A polling coordinator that refreshes every light on an interval
//   - Event fan-out to listeners (MQTT bridge, WebSocket hub, InfluxDB)
//   - State history in SQLite (light_state_history)
//
// # Failure vocabulary
//
// Integrations and entities speak to the host only through ErrNotReady,
// ErrUpdateFailed and ErrCommandFailed. The host decides retry policy from
// those alone:
//
//	ErrNotReady       entry goes to setup_retry, host retries with backoff
//	ErrUpdateFailed   snapshot flagged update_failed, next poll retries
//	ErrCommandFailed  returned to the caller, state unchanged
//
// # Usage
//
//	host := platform.NewHost(platform.Options{
//	    Entries:      platform.NewSQLiteEntryRepository(db.DB),
//	    History:      platform.NewSQLiteHistoryRepository(db.DB),
//	    PollInterval: 30 * time.Second,
//	    Logger:       log,
//	})
//	host.RegisterIntegration(ledIntegration)
//	host.Subscribe(func(ev platform.Event) { ... })
//	if err := host.Start(ctx); err != nil {
//	    return err
//	}
//	defer host.Stop(ctx)
//
// # Thread Safety
//
// Host is safe for concurrent use. Listeners are called synchronously and
// must not block.
package platform
