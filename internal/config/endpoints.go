package config

import "strings"

// EndpointVars 是端点模板中允许出现的占位符取值。
type EndpointVars struct {
	Owner      string
	Region     string
	Domain     string
	Repository string
}

// ExpandEndpoint 将 {owner}/{region}/{domain}/{repo} 占位符替换为具体仓库坐标，
// 并去掉尾部斜杠，方便调用方直接拼接路径。
func ExpandEndpoint(template string, vars EndpointVars) string {
	replacer := strings.NewReplacer(
		"{owner}", vars.Owner,
		"{region}", vars.Region,
		"{domain}", vars.Domain,
		"{repo}", vars.Repository,
	)
	return strings.TrimRight(replacer.Replace(template), "/")
}
