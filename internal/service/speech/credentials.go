package speech

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	speechmodel "github.com/zhouzirui/critter-studio/backend/internal/model/speech"
)

const (
	// secMSGECVersion 与浏览器扩展版本保持一致。
	secMSGECVersion = "1-130.0.2849.68"
	// windowsEpochOffset 是 1601-01-01 到 1970-01-01 的秒数。
	windowsEpochOffset = 11644473600
)

// resolveClientToken 返回规范化后的 TrustedClientToken，缺失时给出明确错误。
func resolveClientToken(cfg *speechmodel.SpeechConfig) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("speech config is not initialized")
	}

	token := strings.TrimSpace(cfg.ClientToken)
	if token == "" {
		return "", fmt.Errorf("speech config is missing the trusted client token")
	}
	return token, nil
}

// generateSecMSGEC 计算 Sec-MS-GEC 校验值：以 5 分钟为粒度的 Windows 时间刻度拼接令牌后做 SHA-256。
func generateSecMSGEC(token string, now time.Time) string {
	ticks := now.Unix() + windowsEpochOffset
	ticks -= ticks % 300

	sum := sha256.Sum256([]byte(fmt.Sprintf("%d%s", ticks*10_000_000, token)))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// buildEndpointURL 为一次连接拼出带鉴权参数的地址。
func buildEndpointURL(endpoint, token, connectionID string, now time.Time) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid speech endpoint %q: %w", endpoint, err)
	}

	query := u.Query()
	query.Set("TrustedClientToken", token)
	query.Set("Sec-MS-GEC", generateSecMSGEC(token, now))
	query.Set("Sec-MS-GEC-Version", secMSGECVersion)
	query.Set("ConnectionId", connectionID)
	u.RawQuery = query.Encode()

	return u.String(), nil
}
