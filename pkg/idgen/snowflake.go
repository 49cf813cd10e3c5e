package idgen

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
)

// ============================================================================
// 雪花算法 ID 生成器
// ============================================================================
//
// 交易号、退款号、流水号、充值单号都基于雪花ID生成：
//   1. 全局唯一 - 多实例部署时用不同的 node 号区分
//   2. 趋势递增 - 便于数据库索引
//   3. 信息隐藏 - 不暴露业务量
//
// ============================================================================

var (
	node *snowflake.Node
	once sync.Once
)

// Init 初始化默认ID生成器，nodeID 取值 0-1023
func Init(nodeID int64) {
	once.Do(func() {
		// 起始时间 2024-01-01 00:00:00 UTC
		snowflake.Epoch = 1704067200000
		n, err := snowflake.NewNode(nodeID)
		if err != nil {
			log.Fatalf("初始化雪花ID生成器失败: %v", err)
		}
		node = n
	})
}

// NextID 生成下一个ID，未初始化时使用 node 1
func NextID() int64 {
	Init(1)
	return node.Generate().Int64()
}

func generate(prefix string) string {
	id := NextID()
	return fmt.Sprintf("%s%s%d", prefix, time.Now().Format("20060102"), id)
}

// GeneratePaymentID 生成支付记录号
// 格式：PAY + 年月日 + 雪花ID
func GeneratePaymentID() string {
	return generate("PAY")
}

// GenerateBillID 生成流水号
func GenerateBillID() string {
	return generate("TXN")
}

// GenerateRefundID 生成退款单号
func GenerateRefundID() string {
	return generate("REF")
}

// GenerateRechargeID 生成充值单号
func GenerateRechargeID() string {
	return generate("RCG")
}
