package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/cognitedata/bridge-carousel/connectors/proxy"
	"github.com/cognitedata/bridge-carousel/connectors/socket"
	"github.com/cognitedata/bridge-carousel/integrations/bridge_cams_to_display"
	"github.com/cognitedata/bridge-carousel/internal"
	"github.com/cognitedata/bridge-carousel/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/kardianos/service"
	log "github.com/sirupsen/logrus"
)

var Version string
var systemLog service.Logger
var fullConfigPath string

type Integration interface {
	Start() error
	Stop()
}

// carouselState is shared by the service run and Stop goroutines.
type carouselState struct {
	mux          sync.Mutex
	stopped      bool
	stopServer   context.CancelFunc
	integrations map[string]Integration
}

var carousel carouselState

// start registers and starts the integrations. It returns false when stop already ran,
// in which case cancel is called and nothing is started.
func (s *carouselState) start(cancel context.CancelFunc, integrations map[string]Integration) bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.stopped {
		cancel()
		return false
	}
	s.stopServer = cancel
	s.integrations = integrations
	for name, i := range integrations {
		if err := i.Start(); err != nil {
			log.Errorf(" %s integration can't be started . Error : %s", name, err.Error())
		}
	}
	return true
}

// stop cancels the server and stops the integrations once.
func (s *carouselState) stop() {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	if s.stopServer != nil {
		s.stopServer()
	}
	for _, intgr := range s.integrations {
		intgr.Stop()
	}
}

type program struct{}

func (p *program) Start(s service.Service) error {
	// Start should not block. Do the actual work async.
	go p.run()
	return nil
}

func (p *program) run() {
	systemLog.Info("----Starting bridge carousel service-------")
	systemLog.Infof("Loading configuration from file %s", fullConfigPath)
	if err := startCarousel(fullConfigPath); err != nil {
		systemLog.Error("Bridge carousel failed. Err:", err.Error())
	}
}

func (p *program) Stop(s service.Service) error {
	// Stop should not block. Return with a few seconds.
	systemLog.Info("----Stopping bridge carousel service-------")
	stopCarousel()
	return nil
}

func configureService() service.Service {
	svcConfig := service.Config{Name: "bridge-carousel", DisplayName: "Bridge carousel", Description: "Wyze bridge camera carousel and proxy service"}
	var prg program
	var err error
	var appService service.Service

	appService, err = service.New(&prg, &svcConfig)
	if err != nil {
		log.Fatal(err)
	}
	systemLog, err = appService.Logger(nil)
	if err != nil {
		fmt.Printf("Error initializing system logger %s", err.Error())
	}
	return appService
}

func configureLogger(logPath, level string) {
	if level == "" {
		level = "info"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
	log.SetFormatter(&log.TextFormatter{
		DisableColors:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		FullTimestamp:   true,
	})
	if logPath != "" && logPath != "-" {
		logPath = filepath.Join(logPath, "bridge-carousel.log")
		f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0666)
		if err != nil {
			fmt.Printf("error opening file: %v", err)
			if systemLog != nil {
				systemLog.Error("Failed to create log , err :" + err.Error())
			}
			return
		}
		log.SetOutput(f)
	}
}

// startCarousel blocks until stopCarousel is called, the process is signalled or the HTTP listener fails.
func startCarousel(mainConfigPath string) error {
	config, err := internal.LoadStaticConfig(mainConfigPath)
	if err != nil {
		return err
	}

	logDir := internal.GetBinaryDir()
	if config.LogDir != "" {
		logDir = config.LogDir
	}
	configureLogger(logDir, config.LogLevel)
	log.Infof("Starting bridge carousel, module %s, listening on %s", config.ModuleName, config.ListenAddress)

	bus := internal.NewEventBus(config.NotificationBuffer)
	router := proxy.NewRouter()
	intgr := bridge_cams_to_display.NewBridgeCamsToDisplay(bus, router, bridge_cams_to_display.Defaults{
		ModuleName:     config.ModuleName,
		ListenHost:     config.ListenHost(),
		ListenPort:     config.ListenPort(),
		RequestTimeout: config.RequestTimeout(),
	})
	if err = intgr.LoadConfigFromJson(config.Sessions); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if !carousel.start(cancel, map[string]Integration{intgr.ID: intgr}) {
		log.Info("Bridge carousel stopped before it was started")
		return nil
	}

	gin.SetMode(gin.ReleaseMode)
	srv := server.New(config.ListenAddress, config.ModuleName, intgr, socket.NewHandler(config.ModuleName, bus, intgr), router)
	err = srv.Start(ctx)
	stopCarousel()
	return err
}

func stopCarousel() {
	carousel.stop()
}

func main() {
	mainConfigPath := flag.String("config", "config.json", "Full path to main configuration file")
	base64encodedConfig := flag.String("bconfig", "", "Base64 encoded config")
	op := flag.String("op", "", "Supported operations : 'gen_config,install,uninstall,run,version,prepare_linux_env,remove_linux_env,update_linux_binary' ")

	flag.Parse()

	fullConfigPath = *mainConfigPath
	if *mainConfigPath == "config.json" {
		fullConfigPath = filepath.Join(internal.GetBinaryDir(), *mainConfigPath)
	}

	// User can configure app by passing configurations as one base64 encoded string
	if *base64encodedConfig != "" {
		log.Info("Loading configuration from cmd line parameter")
		body, err := base64.StdEncoding.DecodeString(*base64encodedConfig)
		if err != nil {
			log.Errorf("Error decoding base64 encoded config: %s ", err.Error())
			return
		}
		if err = os.WriteFile(fullConfigPath, body, 0644); err != nil {
			log.Errorf("Error writing config file: %s ", err.Error())
			return
		}
	}

	switch *op {
	case "gen_config":
		log.Info("Generating config file")
		config := internal.DefaultStaticConfig()
		config.Sessions = json.RawMessage(`[]`)
		body, _ := json.MarshalIndent(&config, " ", "  ")
		if err := os.WriteFile("config.json", body, 0644); err != nil {
			log.Error("Failed to write config file. Err: ", err.Error())
		}
	case "version":
		fmt.Println(Version)
	case "prepare_linux_env":
		if err := internal.PrepareLinuxServiceEnv(); err != nil {
			fmt.Println("Failed to prepare linux environment. Err:", err.Error())
		}
	case "remove_linux_env":
		if err := internal.RemoveLinuxServiceEnv(); err != nil {
			fmt.Println("Failed to remove linux environment. Err:", err.Error())
		}
	case "update_linux_binary":
		if err := internal.UpdateLinuxServiceBinary(); err != nil {
			fmt.Println("Failed to update binary. Err:", err.Error())
		}
	case "install":
		log.Info("Installing bridge-carousel service")
		appService := configureService()
		err := appService.Install()
		if err != nil {
			log.Error("Failed to install service.Make sure you run installation as system administrator Err: ", err.Error())
		} else {
			err = appService.Start()
			if err != nil {
				log.Error("Failed to run service. Err: ", err.Error())
			}
		}
	case "uninstall":
		log.Info("Uninstalling bridge-carousel service")
		appService := configureService()
		if err := appService.Uninstall(); err != nil {
			log.Error("Failed to uninstall service", err.Error())
		}
	case "run":
		// Should be used to start service from CLI
		log.Infof("----- Starting bridge-carousel - version = %s ----------", Version)
		if err := startCarousel(fullConfigPath); err != nil {
			log.Error("Bridge carousel failed. Err: ", err.Error())
			os.Exit(1)
		}
	default:
		// Used by OS service supervisor
		appService := configureService()
		if err := appService.Run(); err != nil {
			log.Error(err)
		}
	}
}
