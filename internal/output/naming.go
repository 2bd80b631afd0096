package output

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	alphabet   = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	maxSlugLen = 40
)

func EnsureDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("输出目录为空")
	}
	return os.MkdirAll(dir, 0o755)
}

// Slug folds a product name to lowercase ASCII words joined by "-".
// Names with no ASCII letters or digits yield "".
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range norm.NFKD.String(name) {
		switch {
		case unicode.Is(unicode.Mn, r):
			continue
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(unicode.ToLower(r))
		default:
			dash = true
		}
		if b.Len() >= maxSlugLen {
			break
		}
	}
	return strings.Trim(b.String(), "-")
}

// NextPath returns a path listing_[<slug>_]<id>_<marketplace>.<ext> in dir
// that does not exist yet.
func NextPath(dir, product, marketplace, ext string, randomLen int, randSrc io.Reader) (id string, path string, err error) {
	if randomLen <= 0 {
		randomLen = 8
	}
	if randSrc == nil {
		randSrc = rand.Reader
	}
	marketplace = strings.ToLower(strings.TrimSpace(marketplace))
	if marketplace == "" {
		marketplace = "xx"
	}
	prefix := "listing_"
	if s := Slug(product); s != "" {
		prefix += s + "_"
	}
	for i := 0; i < 1000; i++ {
		id, err = randomID(randomLen, randSrc)
		if err != nil {
			return "", "", err
		}
		path = filepath.Join(dir, fmt.Sprintf("%s%s_%s.%s", prefix, id, marketplace, ext))
		if !exists(path) {
			return id, path, nil
		}
	}
	return "", "", fmt.Errorf("尝试多次仍无法生成不冲突文件名")
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func randomID(n int, randSrc io.Reader) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(randSrc, buf); err != nil {
		return "", fmt.Errorf("读取随机数失败：%w", err)
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out), nil
}
