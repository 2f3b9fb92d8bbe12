package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"mabletask/tracker/logger"
	"mabletask/tracker/models"
	"mabletask/tracker/rules"
	"mabletask/tracker/tracker"
)

// SettingsSaver persists settings so the next settings load returns them.
type SettingsSaver interface {
	SaveSettings(ctx context.Context, settings models.Settings) error
}

// SettingsHandlers lets administrators replace the gold classification
// settings of new and live sessions.
type SettingsHandlers struct {
	Registry *tracker.Registry
	Rules    *rules.Registry
	// Store is optional; without it updates last until restart.
	Store SettingsSaver
	log   logger.Logger
}

func NewSettingsHandlers(reg *tracker.Registry, ruleReg *rules.Registry, store SettingsSaver, log logger.Logger) *SettingsHandlers {
	return &SettingsHandlers{Registry: reg, Rules: ruleReg, Store: store, log: log}
}

func (h *SettingsHandlers) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"settings": h.Registry.Settings(),
		"metrics":  h.Rules.Keys(),
	})
}

// PutSettings saves the settings, when a store is configured, and applies
// them immediately. Rules over unknown metrics or with unknown types are kept,
// never match, and are listed as warnings.
func (h *SettingsHandlers) PutSettings(c *gin.Context) {
	var settings models.Settings
	if !bind(c, &settings) {
		return
	}
	if settings.GoldThresholdMinutes < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "goldThreshold must not be negative"})
		return
	}

	_, problems := rules.Compile(h.Rules, settings.GoldRules)
	warnings := make([]string, 0, len(problems))
	for _, p := range problems {
		warnings = append(warnings, p.Error())
	}

	if h.Store != nil {
		if err := h.Store.SaveSettings(c.Request.Context(), settings); err != nil {
			h.log.Error("Failed to save gold settings", logger.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save settings"})
			return
		}
	}

	h.Registry.Configure(settings)
	h.log.Info("Gold settings updated",
		logger.Int("rules", len(settings.GoldRules)),
		logger.Int("warnings", len(warnings)),
	)

	c.JSON(http.StatusOK, gin.H{
		"settings": settings,
		"warnings": warnings,
	})
}
