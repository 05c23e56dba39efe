package cellport

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/allbin/go-cellport/osal"
	"github.com/golang/glog"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// Transport owns the UARTs of one board. Ports are created by Init and
// released by Deinit; the convenience methods Read and Write address them by
// id.
type Transport struct {
	driver Driver
	clock  osal.Clock
	lock   *osal.Mutex   // guards ports during Init and Deinit
	held   atomic.String // operation holding lock, for timeout errors

	mu    sync.RWMutex // guards ports for lookups
	ports map[int]*Port
}

// New returns a Transport that claims lines from driver.
func New(driver Driver) *Transport {
	return &Transport{
		driver: driver,
		clock:  osal.NewClock(),
		lock:   osal.NewMutex(),
		ports:  make(map[int]*Port),
	}
}

// Init brings UART id up with the given options and returns the port and
// the queue it posts events to.
//
// Calling Init for an id that is already up returns the existing port and
// queue; the options are ignored.
func (t *Transport) Init(id int, opts ...Option) (*Port, *EventQueue, error) {
	if id < 0 {
		return nil, nil, fmt.Errorf("uart %d: %w", id, ErrInvalidParameter)
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, nil, err
		}
	}

	if err := t.acquire(fmt.Sprintf("init uart %d", id), cfg.LockTimeout); err != nil {
		return nil, nil, err
	}
	defer t.unlock()

	if p := t.lookup(id); p != nil {
		glog.V(1).Infof("uart %d: already initialised", id)
		return p, p.events, nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("uart %d: %w", id, err)
	}

	events := cfg.EventQueue
	if events == nil {
		var err error
		if events, err = NewEventQueue(cfg.EventQueueDepth); err != nil {
			return nil, nil, err
		}
	}

	line, err := t.driver.Open(id, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("uart %d: open: %v: %w", id, err, ErrPlatform)
	}

	p := newPort(id, cfg, line, events, t.clock)
	if err := p.start(); err != nil {
		if cerr := line.Close(); cerr != nil {
			glog.Warningf("uart %d: release after failed start: %v", id, cerr)
		}
		return nil, nil, err
	}

	t.mu.Lock()
	t.ports[id] = p
	t.mu.Unlock()

	glog.V(1).Infof("uart %d: up at %d baud, rx %d bytes, tx %d bytes, rts %v", id,
		cfg.BaudRate, cfg.RxBufferSize, cfg.TxBufferSize, p.flow.enabled)
	return p, events, nil
}

// Deinit shuts UART id down. Calls blocked in Read or Write on that port
// return before Deinit does.
func (t *Transport) Deinit(id int) error {
	if id < 0 {
		return fmt.Errorf("uart %d: %w", id, ErrInvalidParameter)
	}

	timeout := DefaultLockTimeout
	if p := t.lookup(id); p != nil {
		timeout = p.cfg.LockTimeout
	}
	if err := t.acquire(fmt.Sprintf("deinit uart %d", id), timeout); err != nil {
		return err
	}
	defer t.unlock()

	t.mu.Lock()
	p, ok := t.ports[id]
	delete(t.ports, id)
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("uart %d: %w", id, ErrNotInitialized)
	}

	err := p.shutdown()
	glog.V(1).Infof("uart %d: down", id)
	return err
}

// Port returns the port for id, or nil when it is not initialised.
func (t *Transport) Port(id int) *Port {
	return t.lookup(id)
}

// Ports returns the ids of all initialised ports in ascending order.
func (t *Transport) Ports() []int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]int, 0, len(t.ports))
	for id := range t.ports {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Read is Port.Read by id.
func (t *Transport) Read(id int, buf []byte) (int, error) {
	if id < 0 || buf == nil {
		return 0, fmt.Errorf("uart %d: read: %w", id, ErrInvalidParameter)
	}
	p := t.lookup(id)
	if p == nil {
		return 0, fmt.Errorf("uart %d: %w", id, ErrNotInitialized)
	}
	return p.Read(buf)
}

// Write is Port.Write by id.
func (t *Transport) Write(id int, data []byte) (int, error) {
	if id < 0 || data == nil {
		return 0, fmt.Errorf("uart %d: write: %w", id, ErrInvalidParameter)
	}
	p := t.lookup(id)
	if p == nil {
		return 0, fmt.Errorf("uart %d: %w", id, ErrNotInitialized)
	}
	return p.Write(data)
}

// Close shuts every port down in parallel and returns the first error.
func (t *Transport) Close() error {
	if err := t.acquire("close", DefaultLockTimeout); err != nil {
		return err
	}
	defer t.unlock()

	t.mu.Lock()
	ports := t.ports
	t.ports = make(map[int]*Port)
	t.mu.Unlock()

	var g errgroup.Group
	for id, p := range ports {
		g.Go(func() error {
			err := p.shutdown()
			glog.V(1).Infof("uart %d: down", id)
			return err
		})
	}
	return g.Wait()
}

func (t *Transport) lookup(id int) *Port {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ports[id]
}

// acquire takes the port table lock as a fresh task for op. On timeout the
// error names the operation holding it.
func (t *Transport) acquire(op string, timeout time.Duration) error {
	caller := osal.NewTaskID()
	if err := t.lock.TryLock(caller, timeout); err != nil {
		holder := t.held.Load()
		if holder == "" {
			holder = "unknown"
		}
		return fmt.Errorf("%s: lock held by %s: %v: %w", op, holder, err, ErrTimeout)
	}
	t.held.Store(fmt.Sprintf("%s (task %d)", op, caller))
	glog.V(2).Infof("%s: lock taken as task %d", op, caller)
	return nil
}

func (t *Transport) unlock() {
	t.held.Store("")
	if err := t.lock.Unlock(); err != nil {
		panic(fmt.Sprintf("cellport: port table lock: %v", err))
	}
}
