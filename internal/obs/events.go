package obs

// OBS WebSocket v5 event type names this system listens for. Declared
// here so the Master Translator subscribes by name without scattering
// string literals across packages.
const (
	EventSceneItemTransformChanged = "SceneItemTransformChanged"
	EventSceneItemEnableStateChanged = "SceneItemEnableStateChanged"
	EventCurrentProgramSceneChanged = "CurrentProgramSceneChanged"
	EventCurrentPreviewSceneChanged = "CurrentPreviewSceneChanged"
	EventInputSettingsChanged       = "InputSettingsChanged"
	EventSourceFilterSettingsChanged = "SourceFilterSettingsChanged"
	EventSourceFilterEnableStateChanged = "SourceFilterEnableStateChanged"
	EventSceneItemCreated = "SceneItemCreated"
	EventSceneItemRemoved = "SceneItemRemoved"
)
