// Package autopeering 提供 UDP 自动对等节点
//
// 节点通过 ping/pong 双向验证发现网络中的其他节点，并按加盐距离
// 维护固定数量的入站与出站邻居。盐周期性轮换，使邻居关系随时间重新洗牌，
// 单个节点无法长期锁定他人的邻居位置。
//
// # 快速开始
//
//	node, err := autopeering.Start(ctx,
//	    autopeering.WithBindAddr("0.0.0.0:14626"),
//	    autopeering.WithEntryNodes("<base58 公钥>@entry.example.org:14626"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Close()
//
//	sub, _ := node.Subscribe(new(types.EvtPeering))
//	for ev := range sub.Out() {
//	    e := ev.(*types.EvtPeering)
//	    fmt.Println(e.Kind, e.Peer, e.Status)
//	}
//
// # 组成
//
//   - Identity: ed25519 密钥、PeerID、公开盐与私有盐
//   - PeerStore: 已知节点及最近一次 ping/pong 时间（内存或 badger）
//   - Discovery: 活跃/替补列表、重新验证、发现请求
//   - Selection: 入站/出站邻居、对等请求、盐轮换
//   - EventBus: EvtDiscovery 与 EvtPeering 事件
//   - Metrics: Prometheus 指标（可选）
//   - Introspect: 本地诊断 HTTP 服务（可选，默认关闭）
//
// 节点不会建立任何数据连接，邻居集合交给上层（例如 gossip 层）使用。
package autopeering
