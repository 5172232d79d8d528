package custody

import (
	"fmt"
	"math/big"
	"strings"

	xerrors "SafeGuard-Console/internal/errors"
)

var weiPerEther = new(big.Rat).SetInt64(1_000_000_000_000_000_000)

// ParseEtherAmount 将用户输入的以太数量解析为 wei。
// 输入必须是严格正的十进制数, 且换算后不能出现小于 1 wei 的尾数。
func ParseEtherAmount(input string) (*big.Int, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, xerrors.New(CodeInvalidAmount, "金额不能为空")
	}
	value, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return nil, xerrors.New(CodeInvalidAmount, fmt.Sprintf("金额 %q 不是十进制数", trimmed))
	}
	if value.Sign() <= 0 {
		return nil, xerrors.New(CodeInvalidAmount, fmt.Sprintf("金额 %q 必须为正数", trimmed))
	}
	wei := new(big.Rat).Mul(value, weiPerEther)
	if !wei.IsInt() {
		return nil, xerrors.New(CodeInvalidAmount, fmt.Sprintf("金额 %q 低于 1 wei 精度", trimmed))
	}
	return wei.Num(), nil
}
