package snapshot

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/raysh454/mailtrust/internal/logging"
	"github.com/raysh454/mailtrust/internal/model"
)

// collectScript flattens the body into the shape of collected. Sizes are
// reported only when the browser actually knows them.
const collectScript = `(() => {
  const body = document.body;
  if (!body) return [];
  return Array.from(body.querySelectorAll('*')).map(el => {
    const cs = getComputedStyle(el);
    const tag = el.tagName.toLowerCase();
    const out = {
      tag: tag,
      text: el.textContent || '',
      href: tag === 'a' ? (el.getAttribute('href') ? el.href : '') : '',
      src: tag === 'img' ? (el.getAttribute('src') ? el.src : '') : '',
      fontSize: parseFloat(cs.fontSize) || 0,
      opacity: parseFloat(cs.opacity),
      visibility: cs.visibility,
      rendered: null,
      intrinsic: null,
    };
    if (tag === 'img') {
      const loaded = el.complete && el.naturalWidth > 0;
      if (loaded || el.hasAttribute('width') || el.hasAttribute('height') || cs.display === 'none') {
        out.rendered = { width: el.width, height: el.height };
      }
      if (loaded) {
        out.intrinsic = { width: el.naturalWidth, height: el.naturalHeight };
      }
    }
    return out;
  });
})()`

type collected struct {
	Tag        string      `json:"tag"`
	Text       string      `json:"text"`
	Href       string      `json:"href"`
	Src        string      `json:"src"`
	FontSize   float64     `json:"fontSize"`
	Opacity    float64     `json:"opacity"`
	Visibility string      `json:"visibility"`
	Rendered   *model.Size `json:"rendered"`
	Intrinsic  *model.Size `json:"intrinsic"`
}

// Browser renders the body in headless Chrome and reads computed style and
// geometry from the live layout.
type Browser struct {
	cfg      BrowserConfig
	trackers []string
	logger   logging.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc
}

// NewBrowser prepares a Chrome allocator. The browser process starts lazily
// on the first render.
func NewBrowser(cfg Config, logger logging.Logger) (*Browser, error) {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	bc := cfg.Browser
	if bc.Width <= 0 {
		bc.Width = 1280
	}
	if bc.Height <= 0 {
		bc.Height = 1024
	}
	if bc.Timeout <= 0 {
		bc.Timeout = 30 * time.Second
	}
	if bc.IdleAfter <= 0 {
		bc.IdleAfter = 500 * time.Millisecond
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("incognito", true),
	)
	if bc.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(bc.ExecPath))
	}
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Browser{
		cfg:         bc,
		trackers:    cfg.TrustedTrackers,
		logger:      logger.With(logging.Field{Key: "component", Value: "browser_renderer"}),
		allocCtx:    allocCtx,
		allocCancel: cancel,
	}, nil
}

func (b *Browser) Render(ctx context.Context, body string) (*model.Document, error) {
	tabCtx, cancelTab := chromedp.NewContext(b.allocCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.cfg.Timeout)
	defer cancelTimeout()

	// stop the tab when the caller gives up
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	idle := waitNetworkIdle(tabCtx, b.cfg.IdleAfter)
	dataURL := "data:text/html;charset=utf-8;base64," + base64.StdEncoding.EncodeToString([]byte(body))

	if err := chromedp.Run(tabCtx,
		network.Enable(),
		emulation.SetDeviceMetricsOverride(b.cfg.Width, b.cfg.Height, 1, false),
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("load body: %w", err)
	}

	select {
	case <-idle:
	case <-tabCtx.Done():
		return nil, fmt.Errorf("wait for network idle: %w", tabCtx.Err())
	}

	var raw []collected
	if err := chromedp.Run(tabCtx, chromedp.Evaluate(collectScript, &raw)); err != nil {
		return nil, fmt.Errorf("collect elements: %w", err)
	}

	doc := &model.Document{TrustedTrackers: b.trackers, Elements: make([]model.Element, 0, len(raw))}
	for _, c := range raw {
		doc.Elements = append(doc.Elements, model.Element{
			Tag:  c.Tag,
			Text: c.Text,
			Href: c.Href,
			Src:  c.Src,
			Style: model.ComputedStyle{
				FontSizePx: c.FontSize,
				Opacity:    c.Opacity,
				Visibility: c.Visibility,
			},
			Rendered:  c.Rendered,
			Intrinsic: c.Intrinsic,
		})
	}
	b.logger.Debug("rendered body", logging.Field{Key: "elements", Value: len(doc.Elements)})
	return doc, nil
}

// Close shuts the browser down.
func (b *Browser) Close() error {
	b.allocCancel()
	return nil
}

// waitNetworkIdle signals once no request has been in flight for idleAfter.
// The timer starts immediately so a page without subresources settles too.
func waitNetworkIdle(ctx context.Context, idleAfter time.Duration) <-chan struct{} {
	idleChan := make(chan struct{})
	var activeReqs int32
	var timer *time.Timer
	var timerMutex sync.Mutex
	var once sync.Once

	startTimer := func() {
		timerMutex.Lock()
		defer timerMutex.Unlock()

		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(idleAfter, func() {
			if atomic.LoadInt32(&activeReqs) == 0 {
				once.Do(func() { close(idleChan) })
			}
		})
	}

	chromedp.ListenTarget(ctx, func(ev any) {
		switch ev.(type) {
		case *network.EventRequestWillBeSent:
			atomic.AddInt32(&activeReqs, 1)
		case *network.EventLoadingFinished, *network.EventLoadingFailed:
			if atomic.AddInt32(&activeReqs, -1) <= 0 {
				atomic.StoreInt32(&activeReqs, 0)
				startTimer()
			}
		}
	})
	startTimer()

	return idleChan
}
