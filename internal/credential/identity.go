package credential

import "fmt"

// Identity 唯一确定一个上游仓库，四元组全部来自请求路径。
type Identity struct {
	Owner      string
	Region     string
	Domain     string
	Repository string
}

// String 以 owner/region/domain/repo 形式输出，用作缓存键与日志字段。
func (id Identity) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", id.Owner, id.Region, id.Domain, id.Repository)
}
