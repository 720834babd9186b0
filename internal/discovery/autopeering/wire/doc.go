// Package wire 定义 autopeering 的消息与数据包编码
//
// # 帧格式
//
// 每个消息编码为 [类型:1 字节][protowire 载荷]。编码后的消息作为 data
// 放入签名数据包：
//
//	Packet {
//	    1: public_key  (bytes, 32)
//	    2: signature   (bytes, 64，覆盖 data)
//	    3: data        (bytes)
//	}
//
// 发送方 ID 由 public_key 派生。PacketHash(data) 是 blake3-256，
// 响应通过 req_hash 字段引用请求，作为关联键。
//
// # 消息类型
//
//	0x10 Ping              {version, network_id, timestamp, src_addr, dst_addr}
//	0x11 Pong              {req_hash, services, dst_addr, timestamp}
//	0x12 DiscoveryRequest  {timestamp}
//	0x13 DiscoveryResponse {req_hash, peers, timestamp}
//	0x14 PeeringRequest    {timestamp, salt}
//	0x15 PeeringResponse   {req_hash, status, timestamp}
//	0x16 PeeringDrop       {timestamp}
//
// 所有时间戳为 Unix 秒（int64）。
package wire
