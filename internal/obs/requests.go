package obs

import (
	"github.com/obssync/engine/internal/model"
)

// GetVersion returns the OBS and WebSocket protocol versions.
func (c *Client) GetVersion() (VersionInfo, error) {
	var out struct {
		OBSVersion          string `json:"obsVersion"`
		OBSWebSocketVersion string `json:"obsWebSocketVersion"`
	}
	if err := c.request("GetVersion", nil, &out); err != nil {
		return VersionInfo{}, err
	}
	return VersionInfo{OBSVersion: out.OBSVersion, OBSWebSocketVersion: out.OBSWebSocketVersion}, nil
}

// ListScenes returns every scene's name, in OBS's defined order.
func (c *Client) ListScenes() ([]string, error) {
	var out struct {
		Scenes []struct {
			SceneName  string `json:"sceneName"`
			SceneIndex int    `json:"sceneIndex"`
		} `json:"scenes"`
	}
	if err := c.request("GetSceneList", nil, &out); err != nil {
		return nil, err
	}
	names := make([]string, len(out.Scenes))
	for _, s := range out.Scenes {
		names[s.SceneIndex] = s.SceneName
	}
	return names, nil
}

// ListSceneItems returns the items placed in the named scene, in OBS's
// front-to-back order.
func (c *Client) ListSceneItems(sceneName string) ([]model.SceneItemRef, error) {
	var out struct {
		SceneItems []struct {
			SceneItemID int    `json:"sceneItemId"`
			SourceName  string `json:"sourceName"`
		} `json:"sceneItems"`
	}
	req := struct {
		SceneName string `json:"sceneName"`
	}{sceneName}
	if err := c.request("GetSceneItemList", req, &out); err != nil {
		return nil, err
	}
	refs := make([]model.SceneItemRef, len(out.SceneItems))
	for i, it := range out.SceneItems {
		refs[i] = model.SceneItemRef{SceneName: sceneName, SceneItemID: it.SceneItemID, SourceName: it.SourceName}
	}
	return refs, nil
}

// GetTransform returns a scene item's current transform.
func (c *Client) GetTransform(ref model.SceneItemRef) (model.Transform, error) {
	var out struct {
		SceneItemTransform model.Transform `json:"sceneItemTransform"`
	}
	req := struct {
		SceneName   string `json:"sceneName"`
		SceneItemID int    `json:"sceneItemId"`
	}{ref.SceneName, ref.SceneItemID}
	if err := c.request("GetSceneItemTransform", req, &out); err != nil {
		return model.Transform{}, err
	}
	return out.SceneItemTransform, nil
}

// SetTransform applies a full transform to a scene item.
func (c *Client) SetTransform(ref model.SceneItemRef, t model.Transform) error {
	req := struct {
		SceneName          string          `json:"sceneName"`
		SceneItemID        int             `json:"sceneItemId"`
		SceneItemTransform model.Transform `json:"sceneItemTransform"`
	}{ref.SceneName, ref.SceneItemID, t}
	return c.request("SetSceneItemTransform", req, nil)
}

// SetSceneItemEnabled toggles a scene item's visibility.
func (c *Client) SetSceneItemEnabled(ref model.SceneItemRef, enabled bool) error {
	req := struct {
		SceneName        string `json:"sceneName"`
		SceneItemID      int    `json:"sceneItemId"`
		SceneItemEnabled bool   `json:"sceneItemEnabled"`
	}{ref.SceneName, ref.SceneItemID, enabled}
	return c.request("SetSceneItemEnabled", req, nil)
}

// GetCurrentProgramScene returns the name of the active program scene.
func (c *Client) GetCurrentProgramScene() (string, error) {
	var out struct {
		SceneName string `json:"currentProgramSceneName"`
	}
	if err := c.request("GetCurrentProgramScene", nil, &out); err != nil {
		return "", err
	}
	return out.SceneName, nil
}

// SetCurrentProgramScene switches the active program scene.
func (c *Client) SetCurrentProgramScene(sceneName string) error {
	req := struct {
		SceneName string `json:"sceneName"`
	}{sceneName}
	return c.request("SetCurrentProgramScene", req, nil)
}

// GetCurrentPreviewScene returns the name of the active preview scene.
// Only meaningful when studio mode is enabled; otherwise OBS rejects the
// request and the returned error wraps obssync.ErrProtocol.
func (c *Client) GetCurrentPreviewScene() (string, error) {
	var out struct {
		SceneName string `json:"currentPreviewSceneName"`
	}
	if err := c.request("GetCurrentPreviewScene", nil, &out); err != nil {
		return "", err
	}
	return out.SceneName, nil
}

// SetCurrentPreviewScene switches the active preview scene (studio mode).
func (c *Client) SetCurrentPreviewScene(sceneName string) error {
	req := struct {
		SceneName string `json:"sceneName"`
	}{sceneName}
	return c.request("SetCurrentPreviewScene", req, nil)
}

// GetInputSettings returns an input's current settings blob.
func (c *Client) GetInputSettings(inputName string) (map[string]interface{}, error) {
	var out struct {
		InputSettings map[string]interface{} `json:"inputSettings"`
	}
	req := struct {
		InputName string `json:"inputName"`
	}{inputName}
	if err := c.request("GetInputSettings", req, &out); err != nil {
		return nil, err
	}
	return out.InputSettings, nil
}

// SetInputSettings replaces (overlays) an input's settings blob.
func (c *Client) SetInputSettings(inputName string, settings map[string]interface{}) error {
	req := struct {
		InputName     string                 `json:"inputName"`
		InputSettings map[string]interface{} `json:"inputSettings"`
	}{inputName, settings}
	return c.request("SetInputSettings", req, nil)
}

// ListFilters returns the filters attached to a source, in application
// order.
func (c *Client) ListFilters(sourceName string) ([]model.FilterSpec, error) {
	var out struct {
		Filters []struct {
			FilterName     string                 `json:"filterName"`
			FilterEnabled  bool                   `json:"filterEnabled"`
			FilterSettings map[string]interface{} `json:"filterSettings"`
		} `json:"filters"`
	}
	req := struct {
		SourceName string `json:"sourceName"`
	}{sourceName}
	if err := c.request("GetSourceFilterList", req, &out); err != nil {
		return nil, err
	}
	specs := make([]model.FilterSpec, len(out.Filters))
	for i, f := range out.Filters {
		specs[i] = model.FilterSpec{Name: f.FilterName, Enabled: f.FilterEnabled, Settings: f.FilterSettings}
	}
	return specs, nil
}

// SetFilterSettings replaces a filter's settings blob.
func (c *Client) SetFilterSettings(sourceName, filterName string, settings map[string]interface{}) error {
	req := struct {
		SourceName     string                 `json:"sourceName"`
		FilterName     string                 `json:"filterName"`
		FilterSettings map[string]interface{} `json:"filterSettings"`
	}{sourceName, filterName, settings}
	return c.request("SetSourceFilterSettings", req, nil)
}

// SetFilterEnabled toggles a filter's enabled state.
func (c *Client) SetFilterEnabled(sourceName, filterName string, enabled bool) error {
	req := struct {
		SourceName    string `json:"sourceName"`
		FilterName    string `json:"filterName"`
		FilterEnabled bool   `json:"filterEnabled"`
	}{sourceName, filterName, enabled}
	return c.request("SetSourceFilterEnabled", req, nil)
}

// ListInputs returns every input's name and kind, for get_obs_sources().
func (c *Client) ListInputs() ([]model.OBSSource, error) {
	var out struct {
		Inputs []struct {
			InputName string `json:"inputName"`
			InputKind string `json:"inputKind"`
		} `json:"inputs"`
	}
	if err := c.request("GetInputList", nil, &out); err != nil {
		return nil, err
	}
	sources := make([]model.OBSSource, len(out.Inputs))
	for i, in := range out.Inputs {
		sources[i] = model.OBSSource{Name: in.InputName, Kind: in.InputKind}
	}
	return sources, nil
}
