package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/theracare_telehealth/internal/config"
	"github.com/pion/webrtc/v3"
)

// ICEController hands browsers the STUN/TURN servers to put in their
// RTCPeerConnection configuration.
type ICEController struct {
	servers []webrtc.ICEServer
}

func NewICEController(cfg config.WebRTCConfig) *ICEController {
	servers := make([]webrtc.ICEServer, 0, 2)
	if len(cfg.STUNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: cfg.STUNServers})
	}
	if len(cfg.TURNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs:           cfg.TURNServers,
			Username:       cfg.TURNUser,
			Credential:     cfg.TURNPass,
			CredentialType: webrtc.ICECredentialTypePassword,
		})
	}
	return &ICEController{servers: servers}
}

func (c *ICEController) GetICEServers(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"ice_servers": c.servers})
}
