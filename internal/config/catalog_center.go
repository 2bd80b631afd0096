package config

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"listory/internal/catalog"
)

type CatalogSyncResult struct {
	Updated bool
	Message string
	Warning string
}

type catalogLock struct {
	ReleaseID int64  `json:"release_id"`
	TagName   string `json:"tag_name"`
	AssetName string `json:"asset_name"`
	SyncedAt  string `json:"synced_at"`
}

type githubAsset struct {
	Name string `json:"name"`
	URL  string `json:"browser_download_url"`
}

type githubRelease struct {
	ID      int64         `json:"id"`
	TagName string        `json:"tag_name"`
	Assets  []githubAsset `json:"assets"`
}

// SyncCatalogFromCenter downloads the catalog asset of a GitHub release into
// paths.CatalogPath. Unless the center is strict, failures become warnings
// and the previous catalog stays in place.
func SyncCatalogFromCenter(ctx context.Context, cfg *Config, paths *Paths, client *http.Client) (CatalogSyncResult, error) {
	out := CatalogSyncResult{}
	if cfg == nil || paths == nil {
		return out, nil
	}
	center := cfg.CatalogCenter
	fail := func(msg string) (CatalogSyncResult, error) {
		if center.Strict {
			return out, fmt.Errorf("%s", msg)
		}
		out.Warning = msg
		return out, nil
	}
	owner := strings.TrimSpace(center.Owner)
	repo := strings.TrimSpace(center.Repo)
	if owner == "" || repo == "" {
		return fail("catalog_center 缺少 owner 或 repo")
	}
	releaseRef := strings.TrimSpace(center.Release)
	if releaseRef == "" {
		releaseRef = "latest"
	}
	assetName := strings.TrimSpace(center.Asset)
	if assetName == "" {
		assetName = "catalog.yaml"
	}

	timeout := time.Duration(center.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	release, err := fetchGitHubRelease(ctx, client, owner, repo, releaseRef)
	if err != nil {
		return fail(fmt.Sprintf("catalog 中心查询失败：%v", err))
	}
	assetURL := ""
	for _, a := range release.Assets {
		if strings.EqualFold(strings.TrimSpace(a.Name), assetName) {
			assetURL = strings.TrimSpace(a.URL)
			break
		}
	}
	if assetURL == "" {
		return fail(fmt.Sprintf("catalog 中心未找到资产 %s（release=%s）", assetName, fallbackTag(release.TagName, releaseRef)))
	}

	lock, _ := readCatalogLock(paths.CatalogLockPath)
	if lock.ReleaseID == release.ID && lock.AssetName == assetName && exists(paths.CatalogPath) {
		out.Message = fmt.Sprintf("catalog 已是最新版本（%s）", fallbackTag(release.TagName, releaseRef))
		return out, nil
	}

	raw, err := downloadBytes(ctx, client, assetURL)
	if err != nil {
		return fail(fmt.Sprintf("catalog 下载失败：%v", err))
	}
	if err := applyCatalog(raw, paths.CatalogPath); err != nil {
		return fail(fmt.Sprintf("catalog 校验失败：%v", err))
	}
	newLock := catalogLock{
		ReleaseID: release.ID,
		TagName:   release.TagName,
		AssetName: assetName,
		SyncedAt:  time.Now().Format(time.RFC3339),
	}
	if err := writeCatalogLock(paths.CatalogLockPath, newLock); err != nil {
		return fail(fmt.Sprintf("写入 catalog 锁失败：%v", err))
	}
	out.Updated = true
	out.Message = fmt.Sprintf("catalog 更新成功（%s）", fallbackTag(release.TagName, releaseRef))
	return out, nil
}

func fetchGitHubRelease(ctx context.Context, client *http.Client, owner, repo, releaseRef string) (githubRelease, error) {
	var url string
	if strings.EqualFold(releaseRef, "latest") {
		url = fmt.Sprintf("https://api.github.com/repos/%s/%s/releases/latest", owner, repo)
	} else {
		url = fmt.Sprintf("https://api.github.com/repos/%s/%s/releases/tags/%s", owner, repo, releaseRef)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return githubRelease{}, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "listory")
	resp, err := client.Do(req)
	if err != nil {
		return githubRelease{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return githubRelease{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return githubRelease{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out githubRelease
	if err := json.Unmarshal(body, &out); err != nil {
		return githubRelease{}, fmt.Errorf("解析 release 响应失败：%w", err)
	}
	if out.ID == 0 {
		return githubRelease{}, fmt.Errorf("release id 为空")
	}
	return out, nil
}

func downloadBytes(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "listory")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("空响应")
	}
	return raw, nil
}

// applyCatalog validates raw as a catalog and replaces target atomically.
func applyCatalog(raw []byte, target string) error {
	if _, err := catalog.Parse(raw); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	tmp := fmt.Sprintf("%s.tmp-%d", target, time.Now().UnixNano())
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func exists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

func readCatalogLock(path string) (catalogLock, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return catalogLock{}, err
	}
	out := catalogLock{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return catalogLock{}, err
	}
	return out, nil
}

func writeCatalogLock(path string, lock catalogLock) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func fallbackTag(tag, fallback string) string {
	if strings.TrimSpace(tag) != "" {
		return strings.TrimSpace(tag)
	}
	return strings.TrimSpace(fallback)
}
