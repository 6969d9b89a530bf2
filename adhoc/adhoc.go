// Package adhoc announces this perception node to an optional fleet
// registry so consumers can discover where the semantic cloud comes from.
package adhoc

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/russelldj/semantic-slam/logger"
)

const (
	CpuInstance  = 0x2002
	CudaInstance = 0x2003
	RocmInstance = 0x2004
	MpsInstance  = 0x2005

	TimeOutSeconds = 5
)

// InstanceClass maps the configured compute device to a registry class.
func InstanceClass(device string) int {
	switch device {
	case "cuda":
		return CudaInstance
	case "rocm":
		return RocmInstance
	case "mps":
		return MpsInstance
	default:
		return CpuInstance
	}
}

type RegisterRequest struct {
	Id            string `json:"id"`
	IP            string `json:"ip"`
	Port          int    `json:"port"`
	InstanceClass int    `json:"instanceClass"`
	FusionMode    string `json:"fusionMode"`
	TimeStamp     int64  `json:"timestamp"`
}

type RegisterResponse struct {
	Id      string `json:"id"`
	Success bool   `json:"success"`
}

type RegServerConfig struct {
	Port int
	Addr string
}

func (reg *RegServerConfig) SetAddress(addr string, port int) {
	reg.Addr = addr
	reg.Port = port
}

var RegServerCfg RegServerConfig

// SendAliveMessage posts a registration heartbeat until the context ends.
func SendAliveMessage(nodeIP string, nodePort int, instanceClass int, fusionMode string, ctx context.Context, wg *sync.WaitGroup) {
	addr := fmt.Sprintf("%s:%d", RegServerCfg.Addr, RegServerCfg.Port)
	defer wg.Done()
	ticker := time.NewTicker(TimeOutSeconds * time.Second)
	defer ticker.Stop()
	client := resty.New().SetTimeout(TimeOutSeconds * time.Second)
	id := uuid.NewString()
	safeDoRequest := func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Log().Error(fmt.Sprintf("SendAliveMessage panic recovered: %v", r))
			}
		}()
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		var respBody RegisterResponse
		url := fmt.Sprintf("http://%s/api/register", addr)
		reqBody := RegisterRequest{
			Id:            id,
			IP:            nodeIP,
			Port:          nodePort,
			InstanceClass: instanceClass,
			FusionMode:    fusionMode,
			TimeStamp:     time.Now().Unix(),
		}
		resp, err := client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(reqBody).
			SetResult(&respBody).
			Post(url)
		if err != nil {
			logger.Log().Error(fmt.Sprintf("request error: %v", err))
			return
		}
		if resp.IsError() {
			logger.Log().Error(fmt.Sprintf("server returned error: %s, body: %s", resp.Status(), resp.String()))
		}
	}
	safeDoRequest()
	for {
		select {
		case <-ctx.Done():
			logger.Log().Info("SendAliveMessage context cancelled, exiting goroutine.")
			return
		case <-ticker.C:
			safeDoRequest()
		}
	}
}
