package bridge

import (
	"context"
	"fmt"
)

// dispatch queues cmd on uid's worker, starting the worker on first use.
// It never blocks.
func (b *Bridge) dispatch(uid string, cmd CommandMessage) error {
	b.workersMu.Lock()
	defer b.workersMu.Unlock()

	select {
	case <-b.done:
		return ErrStopped
	default:
	}

	q, ok := b.workers[uid]
	if !ok {
		q = make(chan CommandMessage, commandBuffer)
		b.workers[uid] = q
		b.wg.Add(1)
		go b.commandWorker(uid, q)
	}

	select {
	case q <- cmd:
		return nil
	default:
		return fmt.Errorf("%w (%d waiting)", ErrCommandQueueFull, commandBuffer)
	}
}

// stopWorker closes uid's queue. Commands already queued still run.
func (b *Bridge) stopWorker(uid string) {
	b.workersMu.Lock()
	defer b.workersMu.Unlock()
	if q, ok := b.workers[uid]; ok {
		close(q)
		delete(b.workers, uid)
	}
}

// commandWorker applies one light's commands in arrival order.
func (b *Bridge) commandWorker(uid string, q <-chan CommandMessage) {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case cmd, ok := <-q:
			if !ok {
				return
			}
			b.execute(uid, cmd)
		}
	}
}

func (b *Bridge) execute(uid string, cmd CommandMessage) {
	ctx, cancel := context.WithTimeout(b.ctx, b.timeout)
	defer cancel()

	var err error
	if cmd.State == StateOff || (cmd.Brightness != nil && *cmd.Brightness == 0) {
		b.logger.Debug("mqtt command", "light", uid, "state", StateOff)
		err = b.host.TurnOff(ctx, uid)
	} else {
		var level *uint8
		if cmd.Brightness != nil {
			v := uint8(*cmd.Brightness)
			level = &v
		}
		b.logger.Debug("mqtt command", "light", uid, "state", StateOn, "brightness", cmd.Brightness)
		err = b.host.TurnOn(ctx, uid, level)
	}
	if err != nil {
		b.commandsFailed.Add(1)
		b.logger.Warn("mqtt command failed", "light", uid, "error", err)
	}
}
