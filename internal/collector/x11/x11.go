package x11

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"

	"focusift/internal/collector"
)

type X11Collector struct {
	X            *xgbutil.XUtil
	tracker      *collector.Tracker
	lastFocus    collector.FocusInfo
	logger       *slog.Logger
	stopChan     chan struct{}
	focusRequest chan chan focusReply
}

type focusReply struct {
	v   collector.Visibility
	err error
}

var _ collector.Collector = (*X11Collector)(nil)

// NewX11Collector connects to the X server. focusApps are the WM_CLASS
// values during which the focus target counts as visible.
func NewX11Collector(focusApps []string, logger *slog.Logger) (*X11Collector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	X, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	// _NET_ACTIVE_WINDOW and _NET_WM_NAME need EWMH
	if _, err := ewmh.CurrentDesktopGet(X); err != nil {
		logger.Warn("EWMH potentially not supported by window manager", "error", err)
	}

	return &X11Collector{
		X:            X,
		tracker:      collector.NewTracker(focusApps),
		logger:       logger,
		stopChan:     make(chan struct{}),
		focusRequest: make(chan chan focusReply),
	}, nil
}

func (c *X11Collector) getActiveWindowInfo() (collector.FocusInfo, error) {
	activeWinID, err := ewmh.ActiveWindowGet(c.X)
	if err != nil {
		return collector.FocusInfo{}, fmt.Errorf("could not get active window ID: %w", err)
	}

	if activeWinID == 0 {
		return collector.FocusInfo{AppName: "None", Title: "No Active Window"}, nil
	}

	// _NET_WM_NAME preferred, WM_NAME as fallback
	title, err := ewmh.WmNameGet(c.X, activeWinID)
	if err != nil || title == "" {
		title, err = icccm.WmNameGet(c.X, activeWinID)
		if err != nil || title == "" {
			title = "Unknown Title"
		}
	}

	appName := "Unknown App"
	classHints, err := icccm.WmClassGet(c.X, activeWinID)
	if err == nil && classHints != nil {
		appName = classHints.Class
	}

	return collector.FocusInfo{AppName: appName, Title: title}, nil
}

// Start polls the active window every interval and sends a Visibility on
// every hidden/visible change. It blocks until ctx is done or Stop is called.
func (c *X11Collector) Start(ctx context.Context, interval time.Duration, output chan<- collector.Visibility) error {
	c.logger.Info("starting X11 visibility source", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// the WM may not report focus right after start
	for i := 0; i < 3; i++ {
		focus, err := c.getActiveWindowInfo()
		if err == nil {
			c.lastFocus = focus
			if !c.publish(ctx, output, focus) {
				return ctx.Err()
			}
			break
		}
		if i == 2 {
			c.logger.Warn("failed to get initial window focus", "error", err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("X11 visibility source stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-c.stopChan:
			c.logger.Info("X11 visibility source stopping")
			return nil
		case respChan := <-c.focusRequest:
			currentFocus, err := c.getActiveWindowInfo()
			if err != nil {
				c.logger.Warn("error getting current focus on request", "error", err)
			}
			respChan <- focusReply{
				v: collector.Visibility{
					Timestamp: time.Now(),
					Hidden:    c.tracker.Hidden(currentFocus),
					Focus:     currentFocus,
				},
				err: err,
			}
		case <-ticker.C:
			currentFocus, err := c.getActiveWindowInfo()
			if err != nil {
				continue
			}
			if currentFocus != c.lastFocus {
				c.logger.Debug("focus changed",
					"app", currentFocus.AppName,
					"title", collector.Truncate(currentFocus.Title, 50))
				c.lastFocus = currentFocus
			}

			if !c.publish(ctx, output, currentFocus) {
				return ctx.Err()
			}
		}
	}
}

// publish feeds a sample to the tracker and sends the result to output when
// it is a change, including a hidden first sample. It returns false when the
// collector was stopped while sending.
func (c *X11Collector) publish(ctx context.Context, output chan<- collector.Visibility, focus collector.FocusInfo) bool {
	hidden, changed := c.tracker.Update(focus)
	if !changed {
		return true
	}
	v := collector.Visibility{Timestamp: time.Now(), Hidden: hidden, Focus: focus}
	select {
	case output <- v:
		return true
	case <-ctx.Done():
		return false
	case <-c.stopChan:
		return false
	}
}

func (c *X11Collector) Current() (collector.Visibility, error) {
	respChan := make(chan focusReply, 1)
	select {
	case c.focusRequest <- respChan:
		select {
		case reply := <-respChan:
			return reply.v, reply.err
		case <-time.After(1 * time.Second):
			return collector.Visibility{}, fmt.Errorf("timeout waiting for current focus response")
		}
	case <-time.After(100 * time.Millisecond):
		return collector.Visibility{}, fmt.Errorf("timeout sending focus request to collector")
	}
}

func (c *X11Collector) Stop() error {
	c.logger.Debug("sending stop signal to X11 visibility source")
	close(c.stopChan)
	return nil
}
