// Package phone нормализует телефонные номера получателей.
//
// Все номера внутри системы хранятся в E.164 (+919876543210). Разбор
// выполняется библиотекой nyaruka/phonenumbers в три попытки:
//
//  1. номер без "+" трактуется как международный ("+" + цифры);
//  2. номер разбирается как есть;
//  3. номер разбирается как локальный в регионе по умолчанию.
//
// Первая попытка, давшая валидный номер, побеждает.
package phone
