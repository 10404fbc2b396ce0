// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

const (
	refreshSignal = syscall.SIGUSR1
	stateSignal   = syscall.SIGUSR2
)

type signalSource interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Stop(c chan<- os.Signal)
}

type stdLibSignalSource struct{}

func (stdLibSignalSource) Notify(c chan<- os.Signal, sig ...os.Signal) {
	signal.Notify(c, sig...)
}

func (stdLibSignalSource) Stop(c chan<- os.Signal) {
	signal.Stop(c)
}

// HandleSignals refreshes the route on SIGUSR1 and logs the current state on SIGUSR2.
func (s *Service) HandleSignals(ctx context.Context, sigChan chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			switch sig {
			case refreshSignal:
				s.refreshRoute()
			case stateSignal:
				s.stateLock.RLock()
				s.logger.Info("current tracking state", slog.String("mode", s.state.Mode.String()),
					slog.String("address", s.state.Address),
					slog.String("destination", s.state.Destination.Name),
					slog.Int("candidates", len(s.state.Candidates)))
				s.stateLock.RUnlock()
			}
		}
	}
}
