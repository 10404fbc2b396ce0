// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/placetrack/internal/logger"
)

const (
	login1Interface = "org.freedesktop.login1.Manager"
	login1Member    = "PrepareForSleep"

	resumeDebounce   = 2 * time.Second
	signalBufferSize = 8

	busRetryDelay      = 10 * time.Second
	networkWakeupDelay = 10 * time.Second
)

// monitorSleepResume watches logind for resume events and refreshes the route after the system
// woke up. Lost bus connections are re-established until ctx is cancelled.
func (s *Service) monitorSleepResume(ctx context.Context) {
	var lastResume time.Time
	for {
		if err := s.watchSleepSignals(ctx, &lastResume); err != nil {
			s.logger.Debug("sleep monitoring interrupted", logger.Err(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(busRetryDelay):
		}
	}
}

// watchSleepSignals subscribes to the PrepareForSleep signal and handles it until the
// connection is lost or ctx is cancelled.
func (s *Service) watchSleepSignals(ctx context.Context, lastResume *time.Time) error {
	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			s.logger.Debug("failed to close system bus connection", logger.Err(err))
		}
	}()

	if err = conn.AddMatchSignalContext(ctx, dbus.WithMatchInterface(login1Interface),
		dbus.WithMatchMember(login1Member)); err != nil {
		return err
	}
	sigCh := make(chan *dbus.Signal, signalBufferSize)
	conn.Signal(sigCh)
	defer conn.RemoveSignal(sigCh)
	s.logger.Debug("subscribed to dbus signal", slog.String("interface", login1Interface),
		slog.String("member", login1Member))

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-sigCh:
			if !ok {
				return nil
			}
			if isResumeSignal(sig) {
				s.handleResumeEvent(ctx, lastResume)
			}
		}
	}
}

// isResumeSignal reports whether sig is a PrepareForSleep(false) signal.
func isResumeSignal(sig *dbus.Signal) bool {
	if sig == nil || len(sig.Body) != 1 {
		return false
	}
	sleeping, ok := sig.Body[0].(bool)
	return ok && !sleeping
}

// handleResumeEvent refreshes the route after the system woke up. Consecutive resume events are
// debounced and the network gets some time to come back.
func (s *Service) handleResumeEvent(ctx context.Context, lastResume *time.Time) {
	now := time.Now()
	if now.Sub(*lastResume) < resumeDebounce {
		return
	}
	*lastResume = now

	select {
	case <-ctx.Done():
		return
	case <-time.After(networkWakeupDelay):
	}

	s.logger.Debug("resuming from sleep, refreshing route")
	s.refreshRoute()
}
