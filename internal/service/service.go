// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/vorlif/spreak"
	"golang.org/x/text/language"

	"github.com/wneessen/placetrack/internal/config"
	"github.com/wneessen/placetrack/internal/geocode"
	"github.com/wneessen/placetrack/internal/logger"
	"github.com/wneessen/placetrack/internal/places"
	"github.com/wneessen/placetrack/internal/presenter"
	"github.com/wneessen/placetrack/internal/routing"
	"github.com/wneessen/placetrack/internal/tracker"
)

const (
	DesktopID      = "placetrack"
	ResolveTimeout = time.Second * 30
	outputJobName  = "placetrack_output_job"
)

var ErrLoggerRequired = errors.New("logger is required")

type Service struct {
	config    *config.Config
	logger    *logger.Logger
	localizer *spreak.Localizer
	presenter *presenter.Presenter
	scheduler gocron.Scheduler
	store     *places.Store
	output    io.Writer
	SignalSrc signalSource

	geocoder     geocode.Geocoder
	router       routing.Router
	source       tracker.PositionSource
	controller   *tracker.Controller
	monitorSleep bool

	stateLock sync.RWMutex
	state     presenter.State
	printCh   chan struct{}
}

func New(conf *config.Config, log *logger.Logger, loc *spreak.Localizer) (*Service, error) {
	if log == nil {
		return nil, ErrLoggerRequired
	}
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	pres, err := presenter.New(conf, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to create presenter: %w", err)
	}
	store, err := places.NewStore(conf.Places)
	if err != nil {
		return nil, fmt.Errorf("failed to load places: %w", err)
	}
	mode, err := tracker.ParseMode(conf.Mode)
	if err != nil {
		return nil, err
	}

	return &Service{
		config:       conf,
		logger:       log,
		localizer:    loc,
		presenter:    pres,
		scheduler:    scheduler,
		store:        store,
		output:       os.Stdout,
		SignalSrc:    stdLibSignalSource{},
		monitorSleep: true,
		state:        presenter.State{Mode: mode},
		printCh:      make(chan struct{}, 1),
	}, nil
}

// Places returns the configured place list.
func (s *Service) Places() *places.Store {
	return s.store
}

// Run resolves the configured place, starts the tracking controller and prints the output
// until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.setupCollaborators(); err != nil {
		return err
	}

	mode, err := tracker.ParseMode(s.config.Mode)
	if err != nil {
		return err
	}
	s.controller, err = tracker.New(s.source, s.geocoder, s.router, s, s.logger,
		tracker.WithDirectionsThreshold(s.config.Tracking.DirectionsThreshold),
		tracker.WithAddressThreshold(s.config.Tracking.AddressThreshold),
		tracker.WithLookupTimeout(s.config.Intervals.LookupTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create tracking controller: %w", err)
	}

	if s.config.Place != "" {
		if err = s.resolveDestination(ctx); err != nil {
			return err
		}
	}

	if err = s.createScheduledJob(ctx, s.config.Intervals.Output, s.printOutput, outputJobName); err != nil {
		return err
	}
	s.scheduler.Start()

	printCtx, stopPrinter := context.WithCancel(ctx)
	defer stopPrinter()
	var printer sync.WaitGroup
	printer.Add(1)
	go func() {
		defer printer.Done()
		s.printOnRequest(printCtx)
	}()

	if err = s.controller.Start(mode); err != nil {
		stopPrinter()
		printer.Wait()
		_ = s.scheduler.Shutdown()
		return fmt.Errorf("failed to start tracking controller: %w", err)
	}
	s.logger.Info("tracking started", slog.String("mode", mode.String()),
		slog.String("place", s.config.Place))

	sigChan := make(chan os.Signal, 1)
	s.SignalSrc.Notify(sigChan, refreshSignal, stateSignal)
	defer s.SignalSrc.Stop(sigChan)
	go s.HandleSignals(ctx, sigChan)
	if s.monitorSleep {
		go s.monitorSleepResume(ctx)
	}

	// Wait for the context to cancel
	<-ctx.Done()
	s.controller.Stop()
	if waiter, ok := s.source.(interface{ Wait() }); ok {
		waiter.Wait()
	}
	printer.Wait()
	return s.scheduler.Shutdown()
}

func (s *Service) setupCollaborators() error {
	lang := s.language()
	var err error
	if s.geocoder == nil {
		if s.geocoder, err = s.selectGeocodeProvider(lang); err != nil {
			return fmt.Errorf("failed to create geocode provider: %w", err)
		}
	}
	if s.router == nil {
		if s.router, err = s.selectRoutingProvider(lang); err != nil {
			return fmt.Errorf("failed to create routing provider: %w", err)
		}
	}
	if s.source == nil {
		source, err := s.createPositionSource()
		if err != nil {
			return fmt.Errorf("failed to create position source: %w", err)
		}
		s.source = source
	}
	return nil
}

// resolveDestination geocodes the configured place and hands it to the controller.
func (s *Service) resolveDestination(ctx context.Context) error {
	place, err := s.store.Find(s.config.Place)
	if err != nil {
		return fmt.Errorf("failed to select place: %w", err)
	}

	ctxResolve, cancelResolve := context.WithTimeout(ctx, ResolveTimeout)
	defer cancelResolve()
	mark, err := places.ResolvePlace(ctxResolve, s.geocoder, place)
	if err != nil {
		return fmt.Errorf("failed to resolve destination: %w", err)
	}
	s.controller.SetDestination(mark)

	s.stateLock.Lock()
	s.state.Place = place
	s.state.Destination = mark
	s.stateLock.Unlock()
	s.logger.Debug("destination resolved", slog.String("place", place.Name),
		slog.String("coordinate", mark.Coordinate.String()))
	return nil
}

func (s *Service) createScheduledJob(ctx context.Context, interval time.Duration, task func(context.Context),
	jobName string,
) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName(jobName),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", jobName, err)
	}
	return nil
}

// OnAddressUpdated stores the new address label and requests the output to be printed.
func (s *Service) OnAddressUpdated(text string) {
	s.stateLock.Lock()
	s.state.Address = text
	s.state.Err = nil
	s.state.UpdatedAt = time.Now()
	s.stateLock.Unlock()
	s.logger.Debug("address updated", slog.String("address", text))
	s.requestOutput()
}

// OnRouteReady stores the new route candidates and requests the output to be printed.
func (s *Service) OnRouteReady(candidates []routing.Candidate) {
	s.stateLock.Lock()
	s.state.Candidates = candidates
	s.state.Err = nil
	s.state.UpdatedAt = time.Now()
	s.stateLock.Unlock()
	s.logger.Debug("route updated", slog.Int("candidates", len(candidates)))
	s.requestOutput()
}

// OnRouteFailed stores the error and requests the output to be printed. Previous candidates
// are kept.
func (s *Service) OnRouteFailed(err error) {
	s.stateLock.Lock()
	s.state.Err = err
	s.state.UpdatedAt = time.Now()
	s.stateLock.Unlock()
	s.logger.Error("failed to refresh route", logger.Err(err))
	s.requestOutput()
}

// requestOutput asks the printer to print the current state. It never blocks. Pending
// requests are coalesced.
func (s *Service) requestOutput() {
	select {
	case s.printCh <- struct{}{}:
	default:
	}
}

// printOnRequest prints the output for every request until ctx is cancelled.
func (s *Service) printOnRequest(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.printCh:
			s.printOutput(ctx)
		}
	}
}

// refreshRoute requests a new route from the current position outside the regular
// movement threshold.
func (s *Service) refreshRoute() {
	if s.controller == nil || s.controller.Mode() != tracker.ModeActiveDirections {
		return
	}
	if _, err := s.controller.RequestRouteFromFix(); err != nil {
		s.OnRouteFailed(err)
	}
}

// printOutput renders the current state and writes it as JSON line to the output.
func (s *Service) printOutput(context.Context) {
	s.stateLock.RLock()
	state := s.state
	s.stateLock.RUnlock()
	if s.source != nil {
		state.Reference, state.HasReference = s.source.CurrentFix()
	}

	output, err := s.presenter.Render(s.presenter.BuildContext(state))
	if err != nil {
		s.logger.Error("failed to render output", logger.Err(err))
		return
	}
	if err = json.NewEncoder(s.output).Encode(output); err != nil {
		s.logger.Error("failed to encode output", logger.Err(err))
	}
}

func (s *Service) language() language.Tag {
	if s.config.Locale == "" {
		return language.English
	}
	return language.Make(s.config.Locale)
}
