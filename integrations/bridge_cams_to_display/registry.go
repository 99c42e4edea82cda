package bridge_cams_to_display

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/cognitedata/bridge-carousel/connectors/proxy"
	"github.com/cognitedata/bridge-carousel/drivers/bridge"
	"github.com/cognitedata/bridge-carousel/integrations"
	"github.com/cognitedata/bridge-carousel/internal"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var ErrUnknownSession = errors.New("unknown session")

// RuleInstaller is implemented by the proxy router.
type RuleInstaller interface {
	Install(sessionID string, rules proxy.Rules) error
	Uninstall(sessionID string)
}

// BridgeCamsToDisplay is the session registry. Every display instance gets its own session with
// one discovery loop and one rotation loop.
type BridgeCamsToDisplay struct {
	integrations.BaseIntegration
	defaults    Defaults
	router      RuleInstaller
	newDriver   bridge.DriverConstructor
	localConfig IntegrationConfig

	mux      sync.Mutex
	sessions map[string]*Session
	removing map[string]chan struct{} // closed when teardown of the id has finished
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewBridgeCamsToDisplay(notifier internal.Notifier, router RuleInstaller, defaults Defaults) *BridgeCamsToDisplay {
	ctx, cancel := context.WithCancel(context.Background())
	return &BridgeCamsToDisplay{
		BaseIntegration: *integrations.NewIntegration("bridge_cams_to_display", notifier),
		defaults:        defaults,
		router:          router,
		newDriver:       bridge.NewWyzeBridgeDriver,
		sessions:        map[string]*Session{},
		removing:        map[string]chan struct{}{},
		ctx:             ctx,
		cancel:          cancel,
	}
}

func (intgr *BridgeCamsToDisplay) SetDriverConstructor(constructor bridge.DriverConstructor) {
	intgr.newDriver = constructor
}

func (intgr *BridgeCamsToDisplay) SetLocalConfig(localConfig IntegrationConfig) {
	intgr.localConfig = localConfig
}

// LoadConfigFromJson loads preconfigured sessions, config is a json array of SET_CONFIG payloads.
func (intgr *BridgeCamsToDisplay) LoadConfigFromJson(config json.RawMessage) error {
	var sessions []SessionConfig
	if len(config) == 0 || string(config) == "null" {
		intgr.localConfig = IntegrationConfig{}
		return nil
	}
	err := json.Unmarshal(config, &sessions)
	if err != nil {
		log.Error("Failed to unmarshal local config with error : ", err.Error())
		return err
	}
	intgr.localConfig = IntegrationConfig{Sessions: sessions}
	log.Info("Local config has been loaded successfully. Sessions count = ", len(sessions))
	return nil
}

// Start starts preconfigured sessions. Sessions configured by display clients are started by Configure.
func (intgr *BridgeCamsToDisplay) Start() error {
	intgr.IsRunning = true
	for _, config := range intgr.localConfig.Sessions {
		if _, err := intgr.Configure(config); err != nil {
			log.Errorf("Preconfigured session %s can't be started. Error : %s", config.ID, err.Error())
		}
	}
	return nil
}

// Stop cancels every session and waits for their loops to exit.
func (intgr *BridgeCamsToDisplay) Stop() {
	intgr.BaseIntegration.Stop()
	intgr.cancel()
	intgr.mux.Lock()
	ids := make([]string, 0, len(intgr.sessions))
	for id := range intgr.sessions {
		ids = append(ids, id)
	}
	intgr.mux.Unlock()
	for _, id := range ids {
		intgr.Remove(id)
	}
}

// Configure creates a session for an unknown id, installs its proxy rules and starts its loops.
// For a known id the current display state is sent again and the configuration is not changed.
// An id that is being removed is configured once its teardown has finished.
func (intgr *BridgeCamsToDisplay) Configure(config SessionConfig) (bool, error) {
	if err := config.Normalize(intgr.defaults); err != nil {
		return false, err
	}

	intgr.mux.Lock()
	for {
		done, ok := intgr.removing[config.ID]
		if !ok {
			break
		}
		intgr.mux.Unlock()
		<-done
		intgr.mux.Lock()
	}
	if existing, ok := intgr.sessions[config.ID]; ok {
		intgr.mux.Unlock()
		if !existing.config.IsEqual(&config) {
			existing.log.Info("Session is already configured, new configuration ignored")
		}
		intgr.display(existing)
		return false, nil
	}
	if intgr.ctx.Err() != nil {
		intgr.mux.Unlock()
		return false, errors.New("integration is stopped")
	}
	rules, err := config.ProxyRules()
	if err != nil {
		intgr.mux.Unlock()
		return false, errors.Wrap(internal.ErrInvalidConfig, err.Error())
	}
	s := newSession(config, intgr.newDriver(config.ApiAddress(), intgr.defaults.RequestTimeout))
	ctx, cancel := context.WithCancel(intgr.ctx)
	s.cancel = cancel
	intgr.sessions[config.ID] = s
	intgr.mux.Unlock()

	s.log.Infof("Starting session, target %s, stream %s, filter %v", rules.ProxyTarget.String(), rules.StreamTarget.String(), config.Filter.Names())
	if err := intgr.router.Install(config.ID, rules); err != nil {
		s.log.Warnf("Proxy rules not installed. Error : %s", err.Error())
	}
	err = internal.StartRecurring(ctx, intgr.StateTracker, rotationProcID(config.ID), intgr.rotate(s))
	if err == nil {
		err = internal.StartRecurring(ctx, intgr.StateTracker, discoveryProcID(config.ID), intgr.discover(s))
	}
	if err != nil {
		s.log.Errorf("Session loops can't be started. Error : %s", err.Error())
		cancel()
		intgr.router.Uninstall(config.ID)
		intgr.mux.Lock()
		delete(intgr.sessions, config.ID)
		intgr.mux.Unlock()
		return false, err
	}
	return true, nil
}

// Refresh sends the current display state of the session again.
func (intgr *BridgeCamsToDisplay) Refresh(id string) error {
	s, ok := intgr.Session(id)
	if !ok {
		return errors.Wrap(ErrUnknownSession, id)
	}
	intgr.display(s)
	return nil
}

// Remove stops loops of the session and releases its proxy rules.
// The id stays reserved until teardown has finished.
func (intgr *BridgeCamsToDisplay) Remove(id string) error {
	intgr.mux.Lock()
	s, ok := intgr.sessions[id]
	if _, busy := intgr.removing[id]; !ok || busy {
		intgr.mux.Unlock()
		return errors.Wrap(ErrUnknownSession, id)
	}
	done := make(chan struct{})
	intgr.removing[id] = done
	intgr.mux.Unlock()

	s.log.Info("Stopping session")
	s.cancel()
	for _, procID := range []string{discoveryProcID(id), rotationProcID(id)} {
		if intgr.StopProcessor(procID) {
			intgr.StateTracker.Forget(procID)
		}
	}
	intgr.router.Uninstall(id)

	intgr.mux.Lock()
	delete(intgr.sessions, id)
	delete(intgr.removing, id)
	intgr.mux.Unlock()
	close(done)
	return nil
}

func (intgr *BridgeCamsToDisplay) Session(id string) (*Session, bool) {
	intgr.mux.Lock()
	defer intgr.mux.Unlock()
	s, ok := intgr.sessions[id]
	return s, ok
}

// Snapshot returns status of all sessions ordered by id.
func (intgr *BridgeCamsToDisplay) Snapshot() []SessionStatus {
	intgr.mux.Lock()
	sessions := make([]*Session, 0, len(intgr.sessions))
	for _, s := range intgr.sessions {
		sessions = append(sessions, s)
	}
	intgr.mux.Unlock()

	statuses := make([]SessionStatus, 0, len(sessions))
	for _, s := range sessions {
		st := s.status()
		st.Discovery = intgr.StateTracker.GetProcessorState(discoveryProcID(s.ID())).CurrentState
		st.Rotation = intgr.StateTracker.GetProcessorState(rotationProcID(s.ID())).CurrentState
		statuses = append(statuses, st)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	return statuses
}

func discoveryProcID(sessionID string) string {
	return "discovery/" + sessionID
}

func rotationProcID(sessionID string) string {
	return "rotation/" + sessionID
}
