package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"gocv.io/x/gocv"

	"github.com/russelldj/semantic-slam/adhoc"
	"github.com/russelldj/semantic-slam/api"
	"github.com/russelldj/semantic-slam/calib"
	"github.com/russelldj/semantic-slam/cloudgen"
	"github.com/russelldj/semantic-slam/colormap"
	"github.com/russelldj/semantic-slam/config"
	"github.com/russelldj/semantic-slam/engine"
	"github.com/russelldj/semantic-slam/framesync"
	"github.com/russelldj/semantic-slam/fusion"
	"github.com/russelldj/semantic-slam/logger"
	"github.com/russelldj/semantic-slam/monitor"
	"github.com/russelldj/semantic-slam/pipeline"
	"github.com/russelldj/semantic-slam/segmentation"
)

func GetOutboundIP() (string, error) {
	// No traffic is sent; dialing only resolves the local egress address.
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)

	return localAddr.IP.String(), nil
}

func main() {
	if err := logger.InitProduction(); err != nil {
		return
	}
	defer logger.Sync()

	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Log().Fatal(fmt.Sprintf("configuration error: %v", err))
	}
	mode, err := fusion.ParseMode(cfg.FusionMode)
	if err != nil {
		logger.Log().Fatal(err.Error())
	}

	fmt.Println(strings.Repeat("#", 64))
	fmt.Println(" Fusion mode:", mode)
	fmt.Println(" Sensor size:", fmt.Sprintf("%dx%d", cfg.SensorWidth, cfg.SensorHeight))
	fmt.Println(" Raw classes:", cfg.NumClasses)
	fmt.Println(" Slop window:", cfg.SlopSeconds, "s")
	fmt.Println(strings.Repeat("#", 64))
	fmt.Println("")

	ext, err := cfg.ExtrinsicsMatrix()
	if err != nil {
		logger.Log().Fatal(err.Error())
	}
	store, err := calib.NewStore(ext, cfg.Fx, cfg.Fy, cfg.Cx, cfg.Cy)
	if err != nil {
		logger.Log().Fatal(fmt.Sprintf("calibration rejected: %v", err))
	}
	decoder, err := colormap.NewDecoder(cfg.NumClasses)
	if err != nil {
		logger.Log().Fatal(err.Error())
	}
	strategy, err := fusion.NewStrategy(mode, cfg.SensorWidth, cfg.SensorHeight,
		decoder, cfg.ClassRemap, cfg.BackgroundClass)
	if err != nil {
		logger.Log().Fatal(err.Error())
	}

	var adapter *segmentation.Adapter
	if strategy.NeedsModel() {
		fmt.Println("Setting up segmentation model...")
		backend := engine.NewRemote(cfg.SegmenterURL, cfg.NumClasses, 30*time.Second)
		if err := backend.LoadModel(cfg.ModelConfigPath, cfg.ModelPath, cfg.Device); err != nil {
			logger.Log().Fatal(fmt.Sprintf("model setup failed: %v", err))
		}
		defer backend.Destroy()
		adapter = segmentation.NewAdapter(backend,
			cfg.ModelInputWidth, cfg.ModelInputHeight, cfg.FlipChannels, cfg.Rotate180)
		if cfg.Device != "cpu" {
			fmt.Println("Warming up model on", cfg.Device)
			warmMat := gocv.NewMatWithSize(cfg.SensorHeight, cfg.SensorWidth, gocv.MatTypeCV8UC3)
			for i := 0; i < 3; i++ {
				if _, err := adapter.Predict(warmMat); err != nil {
					logger.Log().Warn(fmt.Sprintf("warmup inference failed: %v", err))
					break
				}
			}
			_ = warmMat.Close()
			fmt.Println("Warm up finished")
		}
	}

	syncer := framesync.New(time.Duration(cfg.SlopSeconds * float64(time.Second)))
	generator := cloudgen.NewHTTP(cfg.CloudGeneratorURL, store, cfg.IncludeBackground, 10*time.Second)
	server := api.New(store, syncer)
	controller := pipeline.New(strategy, adapter, store, generator, server)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	go monitor.StartMon(cfg.MetricsPort, ctx)

	if cfg.UseRegServer {
		ip, err := GetOutboundIP()
		if err != nil {
			logger.Log().Warn(fmt.Sprintf("failed to get outbound IP, skipping registration: %v", err))
		} else {
			adhoc.RegServerCfg = adhoc.RegServerConfig{}
			adhoc.RegServerCfg.SetAddress(cfg.RegServerHost, cfg.RegServerPort)
			wg.Add(1)
			go adhoc.SendAliveMessage(ip, cfg.APIPort, adhoc.InstanceClass(cfg.Device), cfg.FusionMode, ctx, &wg)
		}
	} else {
		fmt.Println("useRegServer is set to false, skipping registration")
	}

	done := make(chan struct{})
	go func() {
		controller.Run(syncer.Pairs())
		close(done)
	}()
	go func() {
		if err := server.Run(cfg.APIPort); err != nil {
			logger.Log().Fatal(fmt.Sprintf("API server failed: %v", err))
		}
	}()
	fmt.Println("Ready.")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	cancel()
	syncer.Close()
	<-done
	strategy.Close()
	decoder.Close()
	wg.Wait()
	fmt.Println("Safely exited")
}
