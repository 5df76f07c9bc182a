package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/BaSui01/tenex/types"
)

var (
	// ErrEmptySecret 密钥为空
	ErrEmptySecret = errors.New("agent secret key is empty")
	// ErrInvalidSecret 密钥派生出零标量
	ErrInvalidSecret = errors.New("agent secret key is not a valid secp256k1 scalar")
)

// Identity 是 Agent 的签名身份（secp256k1 + BIP-340 schnorr）
type Identity struct {
	PublicKey string // hex 编码的 32 字节 x-only 公钥
	priv      *btcec.PrivateKey
}

// NewIdentity 从密钥确定性派生签名身份。
// 64 位 hex 密钥直接作为私钥，其他字符串取 sha256 作为私钥。
func NewIdentity(secret string) (*Identity, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	key, err := hex.DecodeString(secret)
	if err != nil || len(key) != btcec.PrivKeyBytesLen {
		sum := sha256.Sum256([]byte(secret))
		key = sum[:]
	}
	priv, pub := btcec.PrivKeyFromBytes(key)
	if priv.Key.IsZero() {
		return nil, ErrInvalidSecret
	}
	return &Identity{
		PublicKey: hex.EncodeToString(schnorr.SerializePubKey(pub)),
		priv:      priv,
	}, nil
}

// SignEvent 填充事件的 PubKey、ID 与 Sig
func (i *Identity) SignEvent(ev *types.Event) error {
	ev.PubKey = i.PublicKey
	hash := sha256.Sum256(ev.Serialize())
	sig, err := schnorr.Sign(i.priv, hash[:])
	if err != nil {
		return err
	}
	ev.ID = hex.EncodeToString(hash[:])
	ev.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}

// EventID 计算事件 ID：规范序列化的 sha256
func EventID(ev *types.Event) string {
	sum := sha256.Sum256(ev.Serialize())
	return hex.EncodeToString(sum[:])
}

// VerifyEvent 校验事件 ID 与 schnorr 签名
func VerifyEvent(ev *types.Event) bool {
	hash := sha256.Sum256(ev.Serialize())
	if hex.EncodeToString(hash[:]) != ev.ID {
		return false
	}
	pubBytes, err := hex.DecodeString(ev.PubKey)
	if err != nil {
		return false
	}
	pub, err := schnorr.ParsePubKey(pubBytes)
	if err != nil {
		return false
	}
	sigBytes, err := hex.DecodeString(ev.Sig)
	if err != nil {
		return false
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return false
	}
	return sig.Verify(hash[:], pub)
}
