package catalog

import "fmt"

const (
	KindMarketplace = "marketplace"
	KindPlatform    = "platform"
	KindBrandTone   = "brand_tone"
	KindOccasion    = "occasion"
	KindLanguage    = "language"
	KindProduct     = "product"
)

// ConfigurationError reports a request that names something the catalog
// does not know. It is raised before any model call.
type ConfigurationError struct {
	Kind   string
	Value  string
	Detail string
}

func (e *ConfigurationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("配置错误（%s）：%s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("配置错误：不支持的 %s %q", e.Kind, e.Value)
}
