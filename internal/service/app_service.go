package service

import (
	"walletledger/internal/config"
)

// AppServiceDirectory 服务单元目录，决定券能否被领取以及能否发给 VO
type AppServiceDirectory struct {
	services  map[string]config.AppServiceConfig
	voAllowed map[string]struct{}
}

func NewAppServiceDirectory(cfg *config.Config) *AppServiceDirectory {
	d := &AppServiceDirectory{
		services:  make(map[string]config.AppServiceConfig, len(cfg.AppServices)),
		voAllowed: make(map[string]struct{}, len(cfg.Business.VoAllowedCategories)),
	}
	for _, svc := range cfg.AppServices {
		d.services[svc.ID] = svc
	}
	for _, category := range cfg.Business.VoAllowedCategories {
		d.voAllowed[category] = struct{}{}
	}
	return d
}

func (d *AppServiceDirectory) Get(id string) (config.AppServiceConfig, bool) {
	svc, ok := d.services[id]
	return svc, ok
}

// AllowVo 该服务单元的券是否可以发放给 VO
func (d *AppServiceDirectory) AllowVo(id string) bool {
	svc, ok := d.services[id]
	if !ok {
		return false
	}
	_, ok = d.voAllowed[svc.Category]
	return ok
}
