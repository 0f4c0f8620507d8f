package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Appsum/JackettCore/internal/indexer/cache"
	"github.com/Appsum/JackettCore/internal/webclient"
)

// sessionProvider is implemented by indexers that keep a site session.
type sessionProvider interface {
	CookieHeader() string
}

// handleProxyDownload serves a rewritten download link: the token is
// verified, the original tracker link is fetched with the indexer's session,
// and the torrent file is streamed back. Magnet links are answered with a
// redirect.
func (s *Server) handleProxyDownload(c echo.Context) error {
	link, err := s.verifyLinkToken(c, cache.ActionDownload)
	if err != nil {
		return err
	}

	if strings.HasPrefix(strings.ToLower(link.Link), "magnet:") {
		return c.Redirect(http.StatusFound, link.Link)
	}

	body, err := s.fetchTorrent(c, link.Indexer, link.Link)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename=%q`, link.Filename))
	return c.Blob(http.StatusOK, "application/x-bittorrent", body)
}

// handleBlackholeDownload fetches the torrent file and drops it into the
// configured blackhole directory for a watching download client to pick up.
func (s *Server) handleBlackholeDownload(c echo.Context) error {
	link, err := s.verifyLinkToken(c, cache.ActionBlackhole)
	if err != nil {
		return err
	}

	dir := s.settings.BlackholeDir()
	if dir == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "no blackhole directory is configured")
	}

	body, err := s.fetchTorrent(c, link.Indexer, link.Link)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	target := filepath.Join(dir, filepath.Base(link.Filename))
	if err := os.WriteFile(target, body, 0o644); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError,
			fmt.Sprintf("could not write to blackhole directory: %v", err))
	}

	return c.JSON(http.StatusOK, map[string]any{"result": "success"})
}

func (s *Server) verifyLinkToken(c echo.Context, action string) (*cache.ProxyLink, error) {
	link, err := s.signer.Verify(c.Param("token"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusForbidden, "invalid download token")
	}
	if link.Action != action || link.Indexer != c.Param("indexer") {
		return nil, echo.NewHTTPError(http.StatusForbidden, "invalid download token")
	}
	return link, nil
}

// fetchTorrent retrieves the original tracker link, attaching the indexer's
// session cookies when it has any.
func (s *Server) fetchTorrent(c echo.Context, indexerID, link string) ([]byte, error) {
	var cookies string
	if ix, err := s.registry.Get(indexerID); err == nil {
		if session, ok := ix.(sessionProvider); ok {
			cookies = session.CookieHeader()
		}
	}

	resp, err := s.webClient.Get(c.Request().Context(), webclient.Request{
		URL:             link,
		Cookies:         cookies,
		FollowRedirects: true,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch from tracker failed: %w", err)
	}
	if resp.Status != http.StatusOK {
		return nil, fmt.Errorf("tracker answered with status %d", resp.Status)
	}
	return resp.Body, nil
}
