package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Appsum/JackettCore/internal/config"
)

// settingsResponse is the API view of the server settings.
type settingsResponse struct {
	APIKey       string `json:"apiKey"`
	BaseURL      string `json:"baseUrl"`
	BlackholeDir string `json:"blackholeDir"`
}

func (s *Server) getSettings(c echo.Context) error {
	settings := s.settings.Get()
	return c.JSON(http.StatusOK, settingsResponse{
		APIKey:       settings.APIKey,
		BaseURL:      settings.BaseURL,
		BlackholeDir: settings.BlackholeDir,
	})
}

type updateSettingsRequest struct {
	BaseURL      string `json:"baseUrl"`
	BlackholeDir string `json:"blackholeDir"`
}

func (s *Server) updateSettings(c echo.Context) error {
	var req updateSettingsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid settings payload")
	}

	err := s.settings.Update(config.Settings{
		BaseURL:      req.BaseURL,
		BlackholeDir: req.BlackholeDir,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return s.getSettings(c)
}

// getRecentLogs returns the buffered log entries, oldest first.
func (s *Server) getRecentLogs(c echo.Context) error {
	return c.JSON(http.StatusOK, s.logStream.Recent())
}
