// Package autopeering 自动对等服务
//
// Service 持有一个节点参与自动对等所需的全部状态：
//
//	identity.Local ── 签名与盐
//	server.Server  ── UDP 收发、验签、限流
//	discover       ── ping/pong 验证、活跃/替补列表、发现请求
//	selection      ── 入站/出站邻居选择、盐轮换
//
// 两个协议共享同一个请求管理器与同一个服务端，
// 服务端按注册顺序将数据报交给 discover 与 selection。
//
// 使用示例：
//
//	svc, err := autopeering.NewService(autopeering.Params{
//	    Local:  local,
//	    Store:  store,
//	    Config: cfg,
//	})
//	if err := svc.Start(ctx); err != nil { ... }
//	defer svc.Stop(ctx)
//
//	for _, p := range svc.Neighbors() { ... }
package autopeering
