package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"time"

	"nasa-go-affiliate/pkg/jwt"
)

// 生成签名密钥；指定 -key 时用该密钥签发一个测试 token
func main() {
	key := flag.String("key", "", "已有的 JWT 签名密钥，为空时生成新密钥")
	role := flag.String("role", "", "签发 token 的角色: affiliate / admin")
	uid := flag.Int("uid", 1, "用户ID")
	aid := flag.Int("aid", 0, "推广员ID，affiliate 角色必填")
	issuer := flag.String("issuer", "nasa-go-affiliate", "签发者")
	ttl := flag.Duration("ttl", 24*time.Hour, "有效期")
	flag.Parse()

	if *key == "" {
		signingKey, err := generateSecureKey(32)
		if err != nil {
			log.Fatal("生成JWT密钥失败:", err)
		}
		fmt.Println("请将以下密钥添加到您的 .env 文件中：")
		fmt.Println()
		fmt.Printf("JWT_SIGNING_KEY=%s\n", signingKey)
		fmt.Println()
		*key = signingKey
	}

	if *role == "" {
		return
	}
	if jwt.Role(*role) == jwt.RoleAffiliate && *aid <= 0 {
		log.Fatal("affiliate 角色需要 -aid")
	}

	token, err := jwt.NewJWTManager(*key, *issuer, *ttl).GenerateToken(*uid, *aid, jwt.Role(*role))
	if err != nil {
		log.Fatal("签发token失败:", err)
	}
	fmt.Printf("Authorization: Bearer %s\n", token)
}

// generateSecureKey 生成指定长度的安全密钥
func generateSecureKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
