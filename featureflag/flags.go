package featureflag

type Flag string

const (
	FlagDisableSceneState  Flag = "DISABLE_SCENE_STATE"
	FlagDisableVisibleSet  Flag = "DISABLE_VISIBLE_SET"
	FlagEnableBoxCulling   Flag = "ENABLE_BOX_CULLING"
	FlagEnableOctreeShrink Flag = "ENABLE_OCTREE_SHRINK"
)
