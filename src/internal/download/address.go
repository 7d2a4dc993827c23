package download

import (
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var apiKeyPattern = regexp.MustCompile(`^[A-Za-z0-9]{34}$`)

// IsValidAddress 判断是否为 0x 开头的 40 位十六进制地址（不校验 checksum）
func IsValidAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return false
	}
	return common.IsHexAddress(s)
}

// ChecksumAddress 返回 EIP-55 形式的地址，用作缓存键
func ChecksumAddress(s string) string {
	return common.HexToAddress(s).Hex()
}

// IsValidAPIKey 判断 explorer 凭证格式：34 位字母数字
func IsValidAPIKey(key string) bool {
	return apiKeyPattern.MatchString(key)
}
