package payme

import "fmt"

// Error codes of the Payme merchant API. The values are part of the wire
// contract.
const (
	CodeParseError      = -32700
	CodeInvalidRequest  = -32600
	CodeMethodNotFound  = -32601
	CodeUnauthorized    = -32504
	CodeSystemError     = -32400
	CodeInvalidAmount   = -31001
	CodeTxNotFound      = -31003
	CodeUnableToCancel  = -31007
	CodeInvalidState    = -31008
	CodeAccountNotFound = -31050
	CodeAccountBusy     = -31051
	CodeAlreadyPaid     = -31052
)

// Message is the localized text Payme shows to the payer.
type Message struct {
	RU string `json:"ru"`
	UZ string `json:"uz"`
	EN string `json:"en"`
}

// Error is a protocol error returned in the response envelope.
type Error struct {
	Code    int     `json:"code"`
	Message Message `json:"message"`
	Data    string  `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("payme error %d (%s): %s", e.Code, e.Data, e.Message.EN)
	}
	return fmt.Sprintf("payme error %d: %s", e.Code, e.Message.EN)
}

var messages = map[int]Message{
	CodeParseError:      {RU: "Ошибка разбора JSON", UZ: "JSON tahlilida xatolik", EN: "Parse error"},
	CodeInvalidRequest:  {RU: "Неверный запрос", UZ: "Noto'g'ri so'rov", EN: "Invalid request"},
	CodeMethodNotFound:  {RU: "Метод не найден", UZ: "Metod topilmadi", EN: "Method not found"},
	CodeUnauthorized:    {RU: "Недостаточно привилегий", UZ: "Ruxsat yetarli emas", EN: "Insufficient privileges"},
	CodeSystemError:     {RU: "Системная ошибка", UZ: "Tizim xatosi", EN: "System error"},
	CodeInvalidAmount:   {RU: "Неверная сумма", UZ: "Noto'g'ri summa", EN: "Invalid amount"},
	CodeTxNotFound:      {RU: "Транзакция не найдена", UZ: "Tranzaksiya topilmadi", EN: "Transaction not found"},
	CodeUnableToCancel:  {RU: "Невозможно отменить транзакцию", UZ: "Tranzaksiyani bekor qilib bo'lmaydi", EN: "Unable to cancel transaction"},
	CodeInvalidState:    {RU: "Невозможно выполнить операцию", UZ: "Amalni bajarib bo'lmaydi", EN: "Unable to perform operation"},
	CodeAccountNotFound: {RU: "Заказ не найден", UZ: "Buyurtma topilmadi", EN: "Order not found"},
	CodeAccountBusy:     {RU: "Заказ ожидает оплаты", UZ: "Buyurtma to'lovni kutmoqda", EN: "Order is awaiting payment"},
	CodeAlreadyPaid:     {RU: "Заказ уже оплачен", UZ: "Buyurtma allaqachon to'langan", EN: "Order already paid"},
}

func newError(code int, data string) *Error {
	return &Error{Code: code, Message: messages[code], Data: data}
}
