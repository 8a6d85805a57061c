package contract

import (
	"path"
	"strings"
)

// NormalizeFileID 规范化路径，统一为跨平台稳定的 FileID。
// 规则：
// - 使用正斜杠分隔符
// - 清理多余分隔符与路径片段（.、..）
// - 保留相对/绝对语义，不做隐式绝对化
func NormalizeFileID(p string) FileID {
	return FileID(path.Clean(strings.ReplaceAll(p, "\\", "/")))
}

// ArtifactFor 将分区标签映射为相对工件名：去除卷名/前导斜杠与 '..' 片段，替换扩展名。
func ArtifactFor(label, ext string) ArtifactID {
	s := string(NormalizeFileID(label))
	if i := strings.IndexByte(s, ':'); i == 1 {
		s = s[2:]
	}
	parts := strings.Split(s, "/")
	kept := parts[:0]
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			continue
		}
		kept = append(kept, p)
	}
	s = strings.Join(kept, "/")
	if s == "" {
		s = "part"
	}
	if e := path.Ext(s); e != "" {
		s = strings.TrimSuffix(s, e)
	}
	return ArtifactID(s + ext)
}

// ObjectKey 将工件 ID 拼接到对象存储前缀之下；拒绝空名与父级逃逸。
func ObjectKey(prefix string, id ArtifactID) (string, error) {
	rel := string(NormalizeFileID(string(id)))
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" || rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", ErrPathInvalid
	}
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return rel, nil
	}
	return prefix + "/" + rel, nil
}
